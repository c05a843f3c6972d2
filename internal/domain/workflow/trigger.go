package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerStartAnalysis Trigger = "START_ANALYSIS"
	TriggerAutoApprove   Trigger = "AUTO_APPROVE"
	TriggerRequestReview Trigger = "REQUEST_REVIEW"
	TriggerManualApprove Trigger = "MANUAL_APPROVE"
	TriggerReject        Trigger = "REJECT"
	TriggerQuarantine    Trigger = "QUARANTINE"
	TriggerRevert        Trigger = "REVERT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
