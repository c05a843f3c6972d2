package entity

import "time"

// FieldDifference is one unmet comparison criterion found while matching an
// invoice against its prior-period reference.
type FieldDifference struct {
	Field    string `json:"field"`
	Current  string `json:"current"`
	Expected string `json:"expected"`
}

// WorkflowInstance tracks one invoice's progress from intake to terminal
// resolution. At most one instance exists per invoice id.
type WorkflowInstance struct {
	ID                 string
	InvoiceID          string
	ProviderID         string
	State              string // domain/workflow.State value
	PreviousState      string
	AssignedReviewer   string
	NeedsConfiguration bool // no reviewer could be resolved for the provider
	IntakeError        string
	Similarity         float64 // percentage versus the reference invoice, 0 when not computed
	Differences        []FieldDifference
	TerminalOutcome    string
	ReceivedAt         time.Time
	AnalyzedAt         *time.Time
	DecidedAt          *time.Time
	NotifiedAt         *time.Time
	ResolvedAt         *time.Time
	UpdatedAt          time.Time
}
