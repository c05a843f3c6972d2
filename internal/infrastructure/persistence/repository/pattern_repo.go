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

// PatternRepository implements port.PatternRepository
type PatternRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPatternRepository creates a new pattern repository
func NewPatternRepository(db *sql.DB, logger *zap.Logger) port.PatternRepository {
	return &PatternRepository{
		db:     db,
		logger: logger,
	}
}

const patternColumns = `id, provider_id, concept, concept_hash, class, payment_count,
	month_count, mean_amount, min_amount, max_amount, std_dev, cv,
	expected_min, expected_max, periodicity, auto_eligible, alert_threshold, analyzed_at`

// Upsert writes the pattern for its (provider_id, concept_hash) key. The unique
// index keeps one row per key; a conflicting insert updates that row in place.
func (r *PatternRepository) Upsert(ctx context.Context, p *entity.Pattern) (bool, error) {
	existing, err := r.GetByKey(ctx, p.ProviderID, p.ConceptHash)
	if err != nil {
		return false, err
	}

	if p.AnalyzedAt.IsZero() {
		p.AnalyzedAt = time.Now().UTC()
	}

	if existing == nil {
		query := `
			INSERT INTO patterns (
				provider_id, concept, concept_hash, class, payment_count,
				month_count, mean_amount, min_amount, max_amount, std_dev, cv,
				expected_min, expected_max, periodicity, auto_eligible,
				alert_threshold, analyzed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		result, err := r.getExecutor(ctx).ExecContext(ctx, query,
			p.ProviderID, p.Concept, p.ConceptHash, p.Class, p.PaymentCount,
			p.MonthCount, p.MeanAmount, p.MinAmount, p.MaxAmount, p.StdDev, p.CV,
			p.ExpectedMin, p.ExpectedMax, p.Periodicity, p.AutoEligible,
			p.AlertThreshold, p.AnalyzedAt,
		)
		if err != nil {
			r.logger.Error("Failed to insert pattern",
				zap.String("provider_id", p.ProviderID),
				zap.String("concept_hash", p.ConceptHash),
				zap.Error(err),
			)
			return false, fmt.Errorf("failed to insert pattern: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("failed to get last insert id: %w", err)
		}
		p.ID = id
		return true, nil
	}

	query := `
		UPDATE patterns SET
			concept = ?, class = ?, payment_count = ?, month_count = ?,
			mean_amount = ?, min_amount = ?, max_amount = ?, std_dev = ?, cv = ?,
			expected_min = ?, expected_max = ?, periodicity = ?, auto_eligible = ?,
			alert_threshold = ?, analyzed_at = ?
		WHERE id = ?
	`
	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		p.Concept, p.Class, p.PaymentCount, p.MonthCount,
		p.MeanAmount, p.MinAmount, p.MaxAmount, p.StdDev, p.CV,
		p.ExpectedMin, p.ExpectedMax, p.Periodicity, p.AutoEligible,
		p.AlertThreshold, p.AnalyzedAt,
		existing.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update pattern",
			zap.String("provider_id", p.ProviderID),
			zap.String("concept_hash", p.ConceptHash),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to update pattern: %w", err)
	}
	p.ID = existing.ID
	return false, nil
}

// GetByKey retrieves the pattern for a (provider_id, concept_hash) key, nil when absent
func (r *PatternRepository) GetByKey(ctx context.Context, providerID, conceptHash string) (*entity.Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM patterns
		WHERE provider_id = ? AND concept_hash = ?
		ORDER BY id ASC
		LIMIT 1
	`

	p, err := r.scanPattern(r.getExecutor(ctx).QueryRowContext(ctx, query, providerID, conceptHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get pattern",
			zap.String("provider_id", providerID),
			zap.String("concept_hash", conceptHash),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return p, nil
}

// ListByProvider returns all patterns for a provider
func (r *PatternRepository) ListByProvider(ctx context.Context, providerID string) ([]*entity.Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM patterns
		WHERE provider_id = ?
		ORDER BY concept_hash ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, providerID)
	if err != nil {
		r.logger.Error("Failed to list patterns", zap.String("provider_id", providerID), zap.Error(err))
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*entity.Pattern
	for rows.Next() {
		p, err := r.scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}

	return patterns, rows.Err()
}

func (r *PatternRepository) scanPattern(row rowScanner) (*entity.Pattern, error) {
	var p entity.Pattern
	err := row.Scan(
		&p.ID,
		&p.ProviderID,
		&p.Concept,
		&p.ConceptHash,
		&p.Class,
		&p.PaymentCount,
		&p.MonthCount,
		&p.MeanAmount,
		&p.MinAmount,
		&p.MaxAmount,
		&p.StdDev,
		&p.CV,
		&p.ExpectedMin,
		&p.ExpectedMax,
		&p.Periodicity,
		&p.AutoEligible,
		&p.AlertThreshold,
		&p.AnalyzedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// getExecutor returns appropriate executor based on context
func (r *PatternRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := sqlite.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.PatternRepository = (*PatternRepository)(nil)
