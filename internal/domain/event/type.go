package event

// Type identifies the kind of domain event
type Type string

const (
	// TypeVerdictIssued fires after a decision commits for an invoice
	TypeVerdictIssued Type = "VERDICT_ISSUED"

	// TypeWorkflowStateChanged fires after any workflow state transition
	TypeWorkflowStateChanged Type = "WORKFLOW_STATE_CHANGED"

	// TypeProviderBlocked fires when an operator blocks a provider
	TypeProviderBlocked Type = "PROVIDER_BLOCKED"
)
