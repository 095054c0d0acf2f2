package domain

import "math"

// comfortBands maps exclusive heat index upper bounds to score and label.
var comfortBands = []struct {
	below float64
	score int
	label string
}{
	{5, 30, "Cold"},
	{10, 50, "Cool"},
	{20, 80, "Comfortable"},
	{27, 90, "Pleasant"},
	{32, 70, "Slightly Warm"},
	{38, 50, "Hot"},
	{45, 30, "Very Hot"},
}

// HeatIndex returns the apparent temperature (°C) for temp (°C) and RH (%).
func HeatIndex(temp, rh float64) float64 {
	switch {
	case temp >= 26:
		return -8.784695 +
			1.61139411*temp +
			2.338549*rh -
			0.14611605*temp*rh -
			0.012308094*temp*temp -
			0.016424828*rh*rh +
			0.002211732*temp*temp*rh +
			0.00072546*temp*rh*rh -
			0.000003582*temp*temp*rh*rh
	case temp <= 10:
		return temp - (100-rh)*0.05
	default:
		return temp + (rh-50)*0.02
	}
}

// RateHeatIndex buckets a heat index. NaN rates as score 0, "Unknown".
func RateHeatIndex(hi float64) (int, string) {
	if math.IsNaN(hi) {
		return 0, "Unknown"
	}
	for _, b := range comfortBands {
		if hi < b.below {
			return b.score, b.label
		}
	}
	return 10, "Dangerous Heat"
}

// ScoreComfort computes the heat index and its rating for mean conditions.
func ScoreComfort(temp, rh float64) Comfort {
	hi := HeatIndex(temp, rh)
	score, label := RateHeatIndex(hi)
	return Comfort{
		HeatIndex: Number(hi),
		Score:     score,
		Label:     label,
	}
}
