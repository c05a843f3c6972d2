package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/domain/entity"
	"github.com/billwise/invoice-autopilot/internal/trust"
)

// TrustView is the external representation of a provider trust score
type TrustView struct {
	ProviderID    string  `json:"provider_id"`
	Score         float64 `json:"score"`
	Tier          string  `json:"tier"`
	TotalInvoices int     `json:"total_invoices"`
	ApprovalRate  float64 `json:"approval_rate"`
	Blocked       bool    `json:"blocked"`
	BlockReason   string  `json:"block_reason,omitempty"`
}

// TrustService exposes trust score operations
type TrustService interface {
	Recompute(ctx context.Context, providerID string) (*TrustView, error)
	Block(ctx context.Context, providerID, actor, reason string) (*TrustView, error)
	Unblock(ctx context.Context, providerID, actor string) (*TrustView, error)
}

type trustServiceImpl struct {
	scorer *trust.Scorer
	logger *zap.Logger
}

// NewTrustService creates a TrustService
func NewTrustService(scorer *trust.Scorer, logger *zap.Logger) TrustService {
	return &trustServiceImpl{scorer: scorer, logger: logger}
}

func (s *trustServiceImpl) Recompute(ctx context.Context, providerID string) (*TrustView, error) {
	ts, err := s.scorer.Recompute(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return toTrustView(ts), nil
}

func (s *trustServiceImpl) Block(ctx context.Context, providerID, actor, reason string) (*TrustView, error) {
	ts, err := s.scorer.Block(ctx, providerID, actor, reason)
	if err != nil {
		return nil, err
	}
	return toTrustView(ts), nil
}

func (s *trustServiceImpl) Unblock(ctx context.Context, providerID, actor string) (*TrustView, error) {
	ts, err := s.scorer.Unblock(ctx, providerID, actor)
	if err != nil {
		return nil, err
	}
	return toTrustView(ts), nil
}

func toTrustView(ts *entity.TrustScore) *TrustView {
	return &TrustView{
		ProviderID:    ts.ProviderID,
		Score:         ts.Score,
		Tier:          ts.EffectiveTier().String(),
		TotalInvoices: ts.TotalInvoices,
		ApprovalRate:  ts.ApprovalRate,
		Blocked:       ts.Blocked,
		BlockReason:   ts.BlockReason,
	}
}
