package analyzer

import (
	"math"
	"sort"
	"time"

	"github.com/billwise/invoice-autopilot/internal/domain/entity"
)

// Mean returns the arithmetic mean of the values, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation. With fewer than 2 values
// the dispersion is undefined and treated as 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// CV returns the coefficient of variation as a percentage: stdev/mean*100.
// A zero mean yields 0 to avoid dividing by zero.
func CV(values []float64) float64 {
	mean := Mean(values)
	if mean == 0 {
		return 0
	}
	return StdDev(values) / mean * 100
}

// DetectPeriodicity buckets the mean gap in days between consecutive dates.
// A single date cannot establish a cadence and is labelled UNIQUE.
func DetectPeriodicity(dates []time.Time) entity.Periodicity {
	if len(dates) < 2 {
		return entity.PeriodicityUnique
	}

	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var totalGap float64
	for i := 1; i < len(sorted); i++ {
		totalGap += sorted[i].Sub(sorted[i-1]).Hours() / 24
	}
	meanGap := totalGap / float64(len(sorted)-1)

	switch {
	case meanGap <= 10:
		return entity.PeriodicityWeekly
	case meanGap <= 20:
		return entity.PeriodicityBiweekly
	case meanGap <= 35:
		return entity.PeriodicityMonthly
	case meanGap <= 65:
		return entity.PeriodicityBimonthly
	case meanGap <= 100:
		return entity.PeriodicityQuarterly
	case meanGap <= 200:
		return entity.PeriodicitySemiannual
	default:
		return entity.PeriodicityAnnual
	}
}

// DistinctMonths counts the distinct calendar months represented in the dates
func DistinctMonths(dates []time.Time) int {
	months := make(map[string]bool, len(dates))
	for _, d := range dates {
		months[d.Format("2006-01")] = true
	}
	return len(months)
}
