// Package trust maintains per-provider trust scores derived from decision
// history. Scores are recomputed whenever new outcomes are recorded.
package trust

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/dispatcher"
	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
	"github.com/billwise/invoice-autopilot/internal/domain/event"
)

// Scorer recomputes and persists provider trust scores
type Scorer struct {
	decisions  port.DecisionRepository
	scores     port.TrustScoreRepository
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewScorer creates a trust scorer
func NewScorer(decisions port.DecisionRepository, scores port.TrustScoreRepository, d dispatcher.Dispatcher, logger *zap.Logger) *Scorer {
	return &Scorer{
		decisions:  decisions,
		scores:     scores,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
	}
}

// Score computes the numeric trust score for a history:
// 0.5*approval_rate + 0.3*auto_approval_success_rate + 0.2*min(1, total/20).
// A provider with zero invoices keeps the neutral 0.5 without evaluating the
// formula, so new providers land in MEDIUM rather than LOW.
func Score(h entity.ProviderHistory) float64 {
	if h.TotalInvoices == 0 {
		return entity.NeutralTrustScore
	}
	volume := math.Min(1, float64(h.TotalInvoices)/20)
	return 0.5*h.ApprovalRate() + 0.3*h.AutoApprovalSuccessRate() + 0.2*volume
}

// Recompute refreshes the provider's trust score from its decision history.
// A manual block survives recomputation; only the numeric fields move.
func (s *Scorer) Recompute(ctx context.Context, providerID string) (*entity.TrustScore, error) {
	history, err := s.decisions.ProviderHistory(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider history for %s: %w", providerID, err)
	}

	existing, err := s.scores.Get(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust score for %s: %w", providerID, err)
	}

	score := Score(history)
	ts := &entity.TrustScore{
		ProviderID:       providerID,
		Score:            score,
		Tier:             entity.TierForScore(score),
		TotalInvoices:    history.TotalInvoices,
		ApprovedInvoices: history.Approved,
		RejectedInvoices: history.Rejected,
		AutoApproved:     history.AutoApproved,
		ApprovalRate:     history.ApprovalRate() * 100,
		AutoSuccessRate:  history.AutoApprovalSuccessRate() * 100,
		UpdatedAt:        s.now(),
	}
	if existing != nil {
		ts.Blocked = existing.Blocked
		ts.BlockReason = existing.BlockReason
		ts.BlockedBy = existing.BlockedBy
		ts.BlockedAt = existing.BlockedAt
		ts.ForceManualReview = existing.ForceManualReview
	}

	if err := s.scores.Upsert(ctx, ts); err != nil {
		return nil, fmt.Errorf("failed to persist trust score for %s: %w", providerID, err)
	}

	s.logger.Info("Trust score recomputed",
		zap.String("provider_id", providerID),
		zap.Float64("score", ts.Score),
		zap.String("tier", ts.EffectiveTier().String()),
		zap.Int("total_invoices", ts.TotalInvoices),
	)

	return ts, nil
}

// Block flags the provider so every future decision is forced to manual
// review, irrespective of the numeric score, until explicitly cleared.
func (s *Scorer) Block(ctx context.Context, providerID, actor, reason string) (*entity.TrustScore, error) {
	ts, err := s.getOrNeutral(ctx, providerID)
	if err != nil {
		return nil, err
	}

	blockedAt := s.now()
	ts.Blocked = true
	ts.BlockReason = reason
	ts.BlockedBy = actor
	ts.BlockedAt = &blockedAt
	ts.UpdatedAt = blockedAt

	if err := s.scores.Upsert(ctx, ts); err != nil {
		return nil, fmt.Errorf("failed to block provider %s: %w", providerID, err)
	}

	s.dispatcher.DispatchAsync(ctx, event.New(event.TypeProviderBlocked, "", "", map[string]interface{}{
		"provider_id": providerID,
		"actor":       actor,
		"reason":      reason,
	}))

	s.logger.Warn("Provider blocked",
		zap.String("provider_id", providerID),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)

	return ts, nil
}

// Unblock clears a manual block
func (s *Scorer) Unblock(ctx context.Context, providerID, actor string) (*entity.TrustScore, error) {
	ts, err := s.getOrNeutral(ctx, providerID)
	if err != nil {
		return nil, err
	}

	ts.Blocked = false
	ts.BlockReason = ""
	ts.BlockedBy = ""
	ts.BlockedAt = nil
	ts.UpdatedAt = s.now()

	if err := s.scores.Upsert(ctx, ts); err != nil {
		return nil, fmt.Errorf("failed to unblock provider %s: %w", providerID, err)
	}

	s.logger.Info("Provider unblocked",
		zap.String("provider_id", providerID),
		zap.String("actor", actor),
	)

	return ts, nil
}

func (s *Scorer) getOrNeutral(ctx context.Context, providerID string) (*entity.TrustScore, error) {
	ts, err := s.scores.Get(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust score for %s: %w", providerID, err)
	}
	if ts == nil {
		ts = entity.NewNeutralTrustScore(providerID)
	}
	return ts, nil
}
