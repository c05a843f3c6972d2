package workflow

// State represents a workflow state in the invoice automation lifecycle
type State string

const (
	StateReceived         State = "RECEIVED"
	StateAnalyzing        State = "ANALYZING"
	StateAutoApproved     State = "AUTO_APPROVED"
	StatePendingReview    State = "PENDING_REVIEW"
	StateManuallyApproved State = "MANUALLY_APPROVED"
	StateRejected         State = "REJECTED"
	StateQuarantined      State = "QUARANTINED"
)

var validStates = map[State]bool{
	StateReceived:         true,
	StateAnalyzing:        true,
	StateAutoApproved:     true,
	StatePendingReview:    true,
	StateManuallyApproved: true,
	StateRejected:         true,
	StateQuarantined:      true,
}

// AUTO_APPROVED is terminal in practice but may still be reverted, so it is
// not listed here; only states with no outgoing transitions at all are.
var terminalStates = map[State]bool{
	StateManuallyApproved: true,
	StateRejected:         true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a known workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
