package entity

// PatternClass classifies the recurrence behaviour of a (provider, concept) group
type PatternClass string

const (
	PatternFixed       PatternClass = "FIXED"
	PatternVariable    PatternClass = "VARIABLE"
	PatternExceptional PatternClass = "EXCEPTIONAL"
)

var validPatternClasses = map[PatternClass]bool{
	PatternFixed:       true,
	PatternVariable:    true,
	PatternExceptional: true,
}

// IsValid returns true if the pattern class is one of the known classes
func (p PatternClass) IsValid() bool {
	return validPatternClasses[p]
}

// String returns the string representation of the pattern class
func (p PatternClass) String() string {
	return string(p)
}

// TrustTier is the coarse trust classification of a provider
type TrustTier string

const (
	TierHigh    TrustTier = "HIGH"
	TierMedium  TrustTier = "MEDIUM"
	TierLow     TrustTier = "LOW"
	TierBlocked TrustTier = "BLOCKED"
)

var validTrustTiers = map[TrustTier]bool{
	TierHigh:    true,
	TierMedium:  true,
	TierLow:     true,
	TierBlocked: true,
}

// IsValid returns true if the tier is one of the known tiers
func (t TrustTier) IsValid() bool {
	return validTrustTiers[t]
}

// String returns the string representation of the tier
func (t TrustTier) String() string {
	return string(t)
}

// Verdict is the decision engine's output classification
type Verdict string

const (
	VerdictAutoApprove  Verdict = "AUTO_APPROVE"
	VerdictManualReview Verdict = "MANUAL_REVIEW"
	VerdictAutoReject   Verdict = "AUTO_REJECT"
)

var validVerdicts = map[Verdict]bool{
	VerdictAutoApprove:  true,
	VerdictManualReview: true,
	VerdictAutoReject:   true,
}

// IsValid returns true if the verdict is one of the known verdicts
func (v Verdict) IsValid() bool {
	return validVerdicts[v]
}

// String returns the string representation of the verdict
func (v Verdict) String() string {
	return string(v)
}

// Periodicity labels the detected payment cadence of a pattern
type Periodicity string

const (
	PeriodicityWeekly     Periodicity = "WEEKLY"
	PeriodicityBiweekly   Periodicity = "BIWEEKLY"
	PeriodicityMonthly    Periodicity = "MONTHLY"
	PeriodicityBimonthly  Periodicity = "BIMONTHLY"
	PeriodicityQuarterly  Periodicity = "QUARTERLY"
	PeriodicitySemiannual Periodicity = "SEMIANNUAL"
	PeriodicityAnnual     Periodicity = "ANNUAL"
	PeriodicityIrregular  Periodicity = "IRREGULAR"
	PeriodicityUnique     Periodicity = "UNIQUE"
)

// String returns the string representation of the periodicity
func (p Periodicity) String() string {
	return string(p)
}

// HasInterval reports whether the periodicity implies a usable payment interval
func (p Periodicity) HasInterval() bool {
	switch p {
	case PeriodicityWeekly, PeriodicityBiweekly, PeriodicityMonthly,
		PeriodicityBimonthly, PeriodicityQuarterly, PeriodicitySemiannual, PeriodicityAnnual:
		return true
	}
	return false
}

// IntervalDays returns the nominal number of days between payments, 0 when none applies
func (p Periodicity) IntervalDays() int {
	switch p {
	case PeriodicityWeekly:
		return 7
	case PeriodicityBiweekly:
		return 14
	case PeriodicityMonthly:
		return 30
	case PeriodicityBimonthly:
		return 61
	case PeriodicityQuarterly:
		return 91
	case PeriodicitySemiannual:
		return 182
	case PeriodicityAnnual:
		return 365
	}
	return 0
}

// FinalOutcome records how a human reconciliation relates to the automated verdict
type FinalOutcome string

const (
	OutcomeConfirmed FinalOutcome = "CONFIRMED"
	OutcomeReverted  FinalOutcome = "REVERTED"
	OutcomeModified  FinalOutcome = "MODIFIED"
)

// String returns the string representation of the outcome
func (o FinalOutcome) String() string {
	return string(o)
}
