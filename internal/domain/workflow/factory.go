package workflow

// NewApprovalMachine builds the invoice approval machine positioned at the
// given state.
//
// RECEIVED -> ANALYZING -> {AUTO_APPROVED | PENDING_REVIEW}
// RECEIVED -> PENDING_REVIEW directly when no reviewer is configured.
// RECEIVED -> QUARANTINED when the provider cannot be resolved.
// PENDING_REVIEW -> MANUALLY_APPROVED, any non-terminal -> REJECTED.
// AUTO_APPROVED is terminal unless manually reverted back to review.
func NewApprovalMachine(current State) Machine {
	b := NewBuilder()

	b.Configure(StateReceived).
		Permit(TriggerStartAnalysis, StateAnalyzing).
		Permit(TriggerRequestReview, StatePendingReview).
		Permit(TriggerQuarantine, StateQuarantined).
		Permit(TriggerReject, StateRejected)

	b.Configure(StateAnalyzing).
		Permit(TriggerAutoApprove, StateAutoApproved).
		Permit(TriggerRequestReview, StatePendingReview).
		Permit(TriggerReject, StateRejected)

	b.Configure(StateAutoApproved).
		Permit(TriggerRevert, StatePendingReview).
		Permit(TriggerReject, StateRejected)

	b.Configure(StatePendingReview).
		Permit(TriggerManualApprove, StateManuallyApproved).
		Permit(TriggerReject, StateRejected)

	b.Configure(StateQuarantined).
		Permit(TriggerStartAnalysis, StateAnalyzing).
		Permit(TriggerRequestReview, StatePendingReview).
		Permit(TriggerReject, StateRejected)

	return b.Build(current)
}
