package domain

import "math"

const kelvinOffset = 273.15

// Derive converts raw samples to Celsius, relative humidity and liquid
// fraction, pointwise.
func Derive(samples []Sample, pressureHPa float64) []DerivedSample {
	out := make([]DerivedSample, len(samples))
	for i, s := range samples {
		out[i] = DerivedSample{
			Time:  s.Time,
			TempC: s.T2M - kelvinOffset,
			RH:    RelativeHumidity(s.T2M, s.QV2M, pressureHPa),
			LF:    LiquidFraction(s.TQL, s.TQV),
		}
	}
	return out
}

// RelativeHumidity returns RH in percent from temperature (K), specific
// humidity (kg/kg) and pressure (hPa), clipped to [0, 100]. NaN inputs give NaN.
func RelativeHumidity(tempK, qv, pressureHPa float64) float64 {
	p := pressureHPa * 100
	e := qv * p / (0.622 + 0.378*qv)
	es := 611.2 * math.Exp(17.67*(tempK-kelvinOffset)/(tempK-29.65))
	rh := 100 * e / es
	if math.IsNaN(rh) {
		return rh
	}
	return math.Max(0, math.Min(100, rh))
}

// LiquidFraction returns 100*TQL/(TQV+TQL), or NaN when the column holds no water.
func LiquidFraction(tql, tqv float64) float64 {
	total := tqv + tql
	if !(total > 0) {
		return math.NaN()
	}
	return tql / total * 100
}
