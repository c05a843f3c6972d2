package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
	"github.com/billwise/invoice-autopilot/internal/infrastructure/persistence/sqlite"
)

// TrustScoreRepository implements port.TrustScoreRepository
type TrustScoreRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTrustScoreRepository creates a new trust score repository
func NewTrustScoreRepository(db *sql.DB, logger *zap.Logger) port.TrustScoreRepository {
	return &TrustScoreRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the trust score for a provider, nil when none is stored
func (r *TrustScoreRepository) Get(ctx context.Context, providerID string) (*entity.TrustScore, error) {
	query := `
		SELECT provider_id, score, tier, total_invoices, approved_invoices,
			rejected_invoices, auto_approved, approval_rate, auto_success_rate,
			blocked, block_reason, blocked_by, blocked_at, force_manual_review,
			updated_at
		FROM trust_scores
		WHERE provider_id = ?
	`

	var ts entity.TrustScore
	var blockedAt sql.NullTime

	err := r.getExecutor(ctx).QueryRowContext(ctx, query, providerID).Scan(
		&ts.ProviderID,
		&ts.Score,
		&ts.Tier,
		&ts.TotalInvoices,
		&ts.ApprovedInvoices,
		&ts.RejectedInvoices,
		&ts.AutoApproved,
		&ts.ApprovalRate,
		&ts.AutoSuccessRate,
		&ts.Blocked,
		&ts.BlockReason,
		&ts.BlockedBy,
		&blockedAt,
		&ts.ForceManualReview,
		&ts.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get trust score", zap.String("provider_id", providerID), zap.Error(err))
		return nil, fmt.Errorf("failed to get trust score: %w", err)
	}

	if blockedAt.Valid {
		ts.BlockedAt = &blockedAt.Time
	}

	return &ts, nil
}

// Upsert writes the trust score, one row per provider
func (r *TrustScoreRepository) Upsert(ctx context.Context, ts *entity.TrustScore) error {
	query := `
		INSERT INTO trust_scores (
			provider_id, score, tier, total_invoices, approved_invoices,
			rejected_invoices, auto_approved, approval_rate, auto_success_rate,
			blocked, block_reason, blocked_by, blocked_at, force_manual_review,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET
			score = excluded.score,
			tier = excluded.tier,
			total_invoices = excluded.total_invoices,
			approved_invoices = excluded.approved_invoices,
			rejected_invoices = excluded.rejected_invoices,
			auto_approved = excluded.auto_approved,
			approval_rate = excluded.approval_rate,
			auto_success_rate = excluded.auto_success_rate,
			blocked = excluded.blocked,
			block_reason = excluded.block_reason,
			blocked_by = excluded.blocked_by,
			blocked_at = excluded.blocked_at,
			force_manual_review = excluded.force_manual_review,
			updated_at = excluded.updated_at
	`

	ts.UpdatedAt = time.Now().UTC()

	var blockedAt interface{}
	if ts.BlockedAt != nil {
		blockedAt = *ts.BlockedAt
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		ts.ProviderID,
		ts.Score,
		ts.Tier,
		ts.TotalInvoices,
		ts.ApprovedInvoices,
		ts.RejectedInvoices,
		ts.AutoApproved,
		ts.ApprovalRate,
		ts.AutoSuccessRate,
		ts.Blocked,
		ts.BlockReason,
		ts.BlockedBy,
		blockedAt,
		ts.ForceManualReview,
		ts.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert trust score", zap.String("provider_id", ts.ProviderID), zap.Error(err))
		return fmt.Errorf("failed to upsert trust score: %w", err)
	}

	return nil
}

// getExecutor returns appropriate executor based on context
func (r *TrustScoreRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := sqlite.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.TrustScoreRepository = (*TrustScoreRepository)(nil)
