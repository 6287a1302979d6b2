package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorityForDeviation(t *testing.T) {
	threshold := d("0.05")

	tests := []struct {
		name      string
		deviation string
		want      ActionPriority
	}{
		{"three times the threshold", "0.15", PriorityCritical},
		{"over three times", "-0.20", PriorityCritical},
		{"twice the threshold", "0.10", PriorityHigh},
		{"between two and three", "0.13", PriorityHigh},
		{"one and a half times", "0.075", PriorityMedium},
		{"just over threshold", "0.06", PriorityLow},
		{"negative deviation buckets on magnitude", "-0.075", PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityForDeviation(d(tt.deviation), threshold)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActionPriority_Reduce(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityCritical.Reduce())
	assert.Equal(t, PriorityMedium, PriorityHigh.Reduce())
	assert.Equal(t, PriorityLow, PriorityMedium.Reduce())
	assert.Equal(t, PriorityOptional, PriorityLow.Reduce())
	assert.Equal(t, PriorityOptional, PriorityOptional.Reduce())
}

func TestActionPriority_Level(t *testing.T) {
	assert.Equal(t, 1, PriorityCritical.Level())
	assert.Equal(t, 2, PriorityHigh.Level())
	assert.Equal(t, 3, PriorityMedium.Level())
	assert.Equal(t, 4, PriorityLow.Level())
	assert.Equal(t, 5, PriorityOptional.Level())
}

func TestAction_MarkExecuted(t *testing.T) {
	action := RebalancingAction{
		Symbol:     "AAPL",
		ActionType: ActionSell,
		Status:     StatusPending,
		Reason:     "over target weight",
	}

	executedAt := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	executed := action.MarkExecuted(executedAt)

	assert.Equal(t, StatusExecuted, executed.Status)
	assert.Equal(t, executedAt, executed.ExecutedAt)
	// The original action value is untouched.
	assert.Equal(t, StatusPending, action.Status)
	assert.True(t, action.ExecutedAt.IsZero())
}

func TestAction_MarkFailed(t *testing.T) {
	action := RebalancingAction{
		Symbol:     "AAPL",
		ActionType: ActionBuy,
		Status:     StatusPending,
		Reason:     "under target weight",
	}

	failed := action.MarkFailed("order rejected by venue")

	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "under target weight | failed: order rejected by venue", failed.Reason)
	assert.True(t, failed.ExecutedAt.IsZero())
	assert.Equal(t, "under target weight", action.Reason)
}

func TestAction_TradeAmount(t *testing.T) {
	action := RebalancingAction{Quantity: d("10"), TargetPrice: d("102.5")}
	assert.True(t, action.TradeAmount().Equal(d("1025")))
}

func TestAction_EstimatedImpact(t *testing.T) {
	action := RebalancingAction{
		EstimatedTransactionCost: d("25"),
		EstimatedTaxImpact:       d("220"),
	}

	impact := action.EstimatedImpact(d("100000"))
	assert.True(t, impact.Equal(d("0.00245")), "impact = %s", impact)

	assert.True(t, action.EstimatedImpact(d("0")).IsZero())
}
