package entity

import "time"

// NeutralTrustScore is the score assigned to providers with no history
const NeutralTrustScore = 0.5

// TrustScore is the per-provider trust profile derived from decision history
type TrustScore struct {
	ProviderID        string
	Score             float64 // [0,1]
	Tier              TrustTier
	TotalInvoices     int
	ApprovedInvoices  int
	RejectedInvoices  int
	AutoApproved      int
	ApprovalRate      float64 // percent
	AutoSuccessRate   float64 // percent
	Blocked           bool
	BlockReason       string
	BlockedBy         string
	BlockedAt         *time.Time
	ForceManualReview bool // forces review regardless of score
	UpdatedAt         time.Time
}

// NewNeutralTrustScore returns the default profile for a provider with no history
func NewNeutralTrustScore(providerID string) *TrustScore {
	return &TrustScore{
		ProviderID: providerID,
		Score:      NeutralTrustScore,
		Tier:       TierMedium,
	}
}

// EffectiveTier returns the tier, honouring a manual block over the numeric score
func (t *TrustScore) EffectiveTier() TrustTier {
	if t.Blocked {
		return TierBlocked
	}
	return t.Tier
}

// TierForScore maps a numeric score to its trust tier
func TierForScore(score float64) TrustTier {
	switch {
	case score > 0.85:
		return TierHigh
	case score >= 0.50:
		return TierMedium
	default:
		return TierLow
	}
}
