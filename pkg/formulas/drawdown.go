package formulas

// DrawdownMetrics summarizes the drawdown state of a value series
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // worst peak-to-trough loss, 0.25 = 25%
	CurrentDrawdown float64 `json:"current_drawdown"` // loss from peak as of the last value
	DaysInDrawdown  int     `json:"days_in_drawdown"` // periods since the peak
	PeakValue       float64 `json:"peak_value"`
	CurrentValue    float64 `json:"current_value"`
}

// MaxDrawdown returns the worst peak-to-trough decline of a value series as a
// positive fraction, or nil when the series is too short
func MaxDrawdown(values []float64) *float64 {
	metrics := Drawdown(values)
	if metrics == nil {
		return nil
	}
	return &metrics.MaxDrawdown
}

// Drawdown walks a value series tracking the running peak and returns the
// full drawdown picture, or nil when the series is too short
func Drawdown(values []float64) *DrawdownMetrics {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]
	peakIndex := 0

	for i, v := range values {
		if v > peak {
			peak = v
			peakIndex = i
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	current := values[len(values)-1]
	currentDrawdown := 0.0
	if peak > 0 {
		currentDrawdown = (peak - current) / peak
	}

	return &DrawdownMetrics{
		MaxDrawdown:     maxDrawdown,
		CurrentDrawdown: currentDrawdown,
		DaysInDrawdown:  len(values) - 1 - peakIndex,
		PeakValue:       peak,
		CurrentValue:    current,
	}
}
