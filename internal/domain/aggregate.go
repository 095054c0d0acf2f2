package domain

import (
	"math"
	"sort"
	"time"
)

// AggregateDaily groups derived samples by UTC calendar date, ordered by date.
func AggregateDaily(samples []DerivedSample) []DailyStat {
	type bucket struct {
		temp, rh, lf stat
	}
	buckets := make(map[time.Time]*bucket)
	for _, s := range samples {
		t := s.Time.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		b, ok := buckets[day]
		if !ok {
			b = &bucket{temp: newStat(), rh: newStat(), lf: newStat()}
			buckets[day] = b
		}
		b.temp.add(s.TempC)
		b.rh.add(s.RH)
		b.lf.add(s.LF)
	}

	days := make([]DailyStat, 0, len(buckets))
	for day, b := range buckets {
		days = append(days, DailyStat{
			Date:      day,
			MeanTempC: b.temp.mean(),
			MaxTempC:  b.temp.max,
			MinTempC:  b.temp.min,
			MeanRH:    b.rh.mean(),
			MaxRH:     b.rh.max,
			MinRH:     b.rh.min,
			MeanLF:    b.lf.mean(),
		})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days
}

// Summarize folds daily statistics into the overall result: the mean of daily
// means, the max of daily maxima and the min of daily minima. A day is rainy
// when its mean liquid fraction exceeds rainThreshold. FilesUsed and Comfort
// are left for the caller.
func Summarize(days []DailyStat, rainThreshold float64) AnalysisResult {
	meanT, maxT, minT := newStat(), newStat(), newStat()
	meanRH, maxRH, minRH := newStat(), newStat(), newStat()
	rainy := 0
	for _, d := range days {
		meanT.add(d.MeanTempC)
		maxT.add(d.MaxTempC)
		minT.add(d.MinTempC)
		meanRH.add(d.MeanRH)
		maxRH.add(d.MaxRH)
		minRH.add(d.MinRH)
		if d.MeanLF > rainThreshold {
			rainy++
		}
	}

	rainPct := math.NaN()
	if len(days) > 0 {
		rainPct = float64(rainy) / float64(len(days)) * 100
	}

	return AnalysisResult{
		MeanT2M:            Number(meanT.mean()),
		MaxT2M:             Number(maxT.max),
		MinT2M:             Number(minT.min),
		MeanRH:             Number(meanRH.mean()),
		MaxRH:              Number(maxRH.max),
		MinRH:              Number(minRH.min),
		RainyDayPercentage: Number(rainPct),
	}
}

// stat accumulates NaN-skipping running statistics. Empty stats report NaN.
type stat struct {
	sum float64
	n   int
	max float64
	min float64
}

func newStat() stat {
	return stat{max: math.NaN(), min: math.NaN()}
}

func (s *stat) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	s.sum += v
	s.n++
	if s.n == 1 || v > s.max {
		s.max = v
	}
	if s.n == 1 || v < s.min {
		s.min = v
	}
}

func (s *stat) mean() float64 {
	if s.n == 0 {
		return math.NaN()
	}
	return s.sum / float64(s.n)
}
