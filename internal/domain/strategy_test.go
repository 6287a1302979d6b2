package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPortfolio builds a portfolio from symbol -> (quantity, price) pairs.
func testPortfolio(t *testing.T, holdings map[string][2]string) Portfolio {
	t.Helper()
	now := time.Now()

	p := Portfolio{ID: 1, Name: "test"}
	for symbol, qp := range holdings {
		pos := NewPosition(symbol)
		pos, err := pos.ApplyBuy(d(qp[0]), d(qp[1]), now)
		require.NoError(t, err)
		pos, err = pos.UpdatePrice(d(qp[1]), now)
		require.NoError(t, err)
		p.Positions = append(p.Positions, pos)
	}
	return p
}

func TestStrategy_IsValid(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]decimal.Decimal
		want    bool
	}{
		{
			name:    "weights sum to one",
			weights: map[string]decimal.Decimal{"A": d("0.6"), "B": d("0.4")},
			want:    true,
		},
		{
			name:    "weights sum within epsilon",
			weights: map[string]decimal.Decimal{"A": d("0.60005"), "B": d("0.4")},
			want:    true,
		},
		{
			name:    "weights over-allocate",
			weights: map[string]decimal.Decimal{"A": d("0.65"), "B": d("0.4")},
			want:    false,
		},
		{
			name:    "weights sum to 0.95",
			weights: map[string]decimal.Decimal{"A": d("0.55"), "B": d("0.40")},
			want:    false,
		},
		{
			name:    "empty targets",
			weights: map[string]decimal.Decimal{},
			want:    false,
		},
		{
			name:    "nil targets",
			weights: nil,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := RebalancingStrategy{TargetWeights: tt.weights, ToleranceThreshold: d("0.05")}
			assert.Equal(t, tt.want, s.IsValid())
		})
	}
}

func TestStrategy_RequiresRebalancing_StrictThreshold(t *testing.T) {
	// A is 60%, B is 40% of a 10,000 portfolio.
	portfolio := testPortfolio(t, map[string][2]string{
		"A": {"60", "100"},
		"B": {"40", "100"},
	})

	strategy := RebalancingStrategy{
		TargetWeights:      map[string]decimal.Decimal{"A": d("0.55"), "B": d("0.45")},
		ToleranceThreshold: d("0.05"),
	}

	// Deviation is exactly 0.05 on both symbols: strictly greater is required.
	assert.False(t, strategy.RequiresRebalancing(portfolio))

	strategy.ToleranceThreshold = d("0.0499")
	assert.True(t, strategy.RequiresRebalancing(portfolio))
}

func TestStrategy_RequiresRebalancing_AbsentSymbolWeighsZero(t *testing.T) {
	portfolio := testPortfolio(t, map[string][2]string{
		"A": {"100", "100"},
	})

	strategy := RebalancingStrategy{
		TargetWeights:      map[string]decimal.Decimal{"A": d("0.9"), "C": d("0.1")},
		ToleranceThreshold: d("0.05"),
	}

	// C is absent, so its deviation is the full 10% target.
	assert.True(t, strategy.RequiresRebalancing(portfolio))
}

func TestStrategy_Deviations(t *testing.T) {
	portfolio := testPortfolio(t, map[string][2]string{
		"A": {"60", "100"},
		"B": {"40", "100"},
	})

	strategy := RebalancingStrategy{
		TargetWeights:      map[string]decimal.Decimal{"A": d("0.5"), "B": d("0.5")},
		ToleranceThreshold: d("0.03"),
	}

	deviations := strategy.Deviations(portfolio)
	require.Len(t, deviations, 2)
	assert.True(t, deviations["A"].Equal(d("-0.1")), "A deviation = %s", deviations["A"])
	assert.True(t, deviations["B"].Equal(d("0.1")), "B deviation = %s", deviations["B"])

	assert.True(t, strategy.MaxDeviation(portfolio).Equal(d("0.1")))
}

func TestStrategy_Deviations_EmptyPortfolio(t *testing.T) {
	strategy := RebalancingStrategy{
		TargetWeights:      map[string]decimal.Decimal{"A": d("1")},
		ToleranceThreshold: d("0.05"),
	}

	deviations := strategy.Deviations(Portfolio{})
	assert.True(t, deviations["A"].Equal(d("1")))
	assert.True(t, strategy.MaxDeviation(Portfolio{}).Equal(d("1")))
}

func TestFrequency_Days(t *testing.T) {
	assert.Equal(t, 1, FrequencyDaily.Days())
	assert.Equal(t, 7, FrequencyWeekly.Days())
	assert.Equal(t, 30, FrequencyMonthly.Days())
	assert.Equal(t, 90, FrequencyQuarterly.Days())
	assert.Equal(t, 365, FrequencyAnnually.Days())
	assert.Equal(t, 0, FrequencyThresholdBased.Days())
}
