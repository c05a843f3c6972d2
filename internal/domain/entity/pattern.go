package entity

import "time"

// Pattern is the computed recurrence profile for one (provider, normalized concept) pair.
// One row per key; recomputation upserts in place, it never creates duplicates.
type Pattern struct {
	ID             int64
	ProviderID     string
	Concept        string // normalized concept text
	ConceptHash    string // hex md5 of the normalized concept, grouping key
	Class          PatternClass
	PaymentCount   int
	MonthCount     int // distinct calendar months represented
	MeanAmount     float64
	MinAmount      float64
	MaxAmount      float64
	StdDev         float64
	CV             float64 // coefficient of variation, percent
	ExpectedMin    float64 // only meaningful for VARIABLE
	ExpectedMax    float64 // only meaningful for VARIABLE
	Periodicity    Periodicity
	AutoEligible   bool    // eligible for automatic approval
	AlertThreshold float64 // deviation-alert threshold, percent
	AnalyzedAt     time.Time
}

// IsValid reports whether the pattern was computed from enough evidence:
// at least 2 payments across at least 2 distinct months.
func (p *Pattern) IsValid() bool {
	return p.PaymentCount >= 2 && p.MonthCount >= 2
}

// WithinAlertThreshold reports whether an amount's relative deviation from the
// pattern mean stays under the deviation-alert threshold.
func (p *Pattern) WithinAlertThreshold(amount float64) bool {
	return p.DeviationPct(amount) <= p.AlertThreshold
}

// DeviationPct returns the relative deviation of an amount from the pattern
// mean, as a percentage. A zero mean yields 0 for zero amounts and 100 otherwise.
func (p *Pattern) DeviationPct(amount float64) float64 {
	if p.MeanAmount == 0 {
		if amount == 0 {
			return 0
		}
		return 100
	}
	dev := (amount - p.MeanAmount) / p.MeanAmount * 100
	if dev < 0 {
		dev = -dev
	}
	return dev
}
