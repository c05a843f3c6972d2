package entity

import "time"

// Criterion is one evaluated decision check, kept structured for audit reproducibility
type Criterion struct {
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	Satisfied bool    `json:"satisfied"`
	Observed  string  `json:"observed"`
	Required  string  `json:"required"`
}

// DecisionRecord is the immutable audit row for one automated or manual decision.
// Override fields are appended after the fact; nothing else is ever mutated.
type DecisionRecord struct {
	ID             string
	InvoiceID      string
	ProviderID     string
	Verdict        Verdict
	Confidence     float64
	Justification  string
	PatternClass   PatternClass // detected class at decision time, empty when no pattern
	RefInvoiceID   string       // prior-period invoice used for comparison, if any
	Criteria       []Criterion
	ConfigSnapshot string // JSON snapshot of the decision configuration used
	Overridden     bool
	OverriddenBy   string
	OverrideReason string
	FinalOutcome   FinalOutcome
	CreatedAt      time.Time
}
