package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/infrastructure/persistence/sqlite"
)

// ReviewerRepository implements port.ReviewerDirectory backed by the
// provider_reviewers table
type ReviewerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReviewerRepository creates a new reviewer repository
func NewReviewerRepository(db *sql.DB, logger *zap.Logger) port.ReviewerDirectory {
	return &ReviewerRepository{
		db:     db,
		logger: logger,
	}
}

// ReviewerFor returns the reviewer configured for the provider, empty string
// when none is configured
func (r *ReviewerRepository) ReviewerFor(ctx context.Context, providerID string) (string, error) {
	query := `SELECT reviewer FROM provider_reviewers WHERE provider_id = ?`

	var reviewer string
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, providerID).Scan(&reviewer)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to resolve reviewer", zap.String("provider_id", providerID), zap.Error(err))
		return "", fmt.Errorf("failed to resolve reviewer: %w", err)
	}

	return reviewer, nil
}

// getExecutor returns appropriate executor based on context
func (r *ReviewerRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := sqlite.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.ReviewerDirectory = (*ReviewerRepository)(nil)
