package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
	"github.com/billwise/invoice-autopilot/internal/infrastructure/persistence/sqlite"
)

// DecisionRepository implements port.DecisionRepository
type DecisionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *sql.DB, logger *zap.Logger) port.DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

const decisionColumns = `id, invoice_id, provider_id, verdict, confidence, justification,
	pattern_class, ref_invoice_id, criteria, config_snapshot, overridden,
	overridden_by, override_reason, final_outcome, created_at`

// Create appends a new decision record
func (r *DecisionRepository) Create(ctx context.Context, rec *entity.DecisionRecord) error {
	criteria, err := json.Marshal(rec.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decision_records (
			id, invoice_id, provider_id, verdict, confidence, justification,
			pattern_class, ref_invoice_id, criteria, config_snapshot, overridden,
			overridden_by, override_reason, final_outcome, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		rec.ID,
		rec.InvoiceID,
		rec.ProviderID,
		rec.Verdict,
		rec.Confidence,
		rec.Justification,
		rec.PatternClass,
		rec.RefInvoiceID,
		string(criteria),
		rec.ConfigSnapshot,
		rec.Overridden,
		rec.OverriddenBy,
		rec.OverrideReason,
		rec.FinalOutcome,
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create decision record",
			zap.String("invoice_id", rec.InvoiceID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to create decision record: %w", err)
	}

	return nil
}

// GetLatestByInvoice retrieves the most recent decision record for an invoice,
// nil when the invoice has never been decided
func (r *DecisionRepository) GetLatestByInvoice(ctx context.Context, invoiceID string) (*entity.DecisionRecord, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM decision_records
		WHERE invoice_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`

	rec, err := r.scanRecord(r.getExecutor(ctx).QueryRowContext(ctx, query, invoiceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest decision record", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest decision record: %w", err)
	}
	return rec, nil
}

// ListByInvoice returns all decision records for an invoice, oldest first
func (r *DecisionRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.DecisionRecord, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM decision_records
		WHERE invoice_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to list decision records", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list decision records: %w", err)
	}
	defer rows.Close()

	var records []*entity.DecisionRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// AppendOverride attaches override fields to an existing record. The original
// verdict, confidence and criteria stay untouched.
func (r *DecisionRepository) AppendOverride(ctx context.Context, id, actor, reason string, outcome entity.FinalOutcome) error {
	query := `
		UPDATE decision_records
		SET overridden = 1, overridden_by = ?, override_reason = ?, final_outcome = ?
		WHERE id = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, actor, reason, outcome, id)
	if err != nil {
		r.logger.Error("Failed to append override", zap.String("decision_id", id), zap.Error(err))
		return fmt.Errorf("failed to append override: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check override result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("decision record %s not found", id)
	}

	return nil
}

// ProviderHistory aggregates the provider's decision outcomes across all invoices
func (r *DecisionRepository) ProviderHistory(ctx context.Context, providerID string) (entity.ProviderHistory, error) {
	var h entity.ProviderHistory

	resolved := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN w.state IN ('AUTO_APPROVED', 'MANUALLY_APPROVED') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN w.state = 'REJECTED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.purchase_order != '' THEN 1 ELSE 0 END), 0)
		FROM workflow_instances w
		JOIN invoices i ON i.id = w.invoice_id
		WHERE w.provider_id = ?
			AND w.state IN ('AUTO_APPROVED', 'MANUALLY_APPROVED', 'REJECTED')
	`

	err := r.getExecutor(ctx).QueryRowContext(ctx, resolved, providerID).Scan(
		&h.TotalInvoices,
		&h.Approved,
		&h.Rejected,
		&h.WithPurchaseOrder,
	)
	if err != nil {
		r.logger.Error("Failed to aggregate provider outcomes", zap.String("provider_id", providerID), zap.Error(err))
		return entity.ProviderHistory{}, fmt.Errorf("failed to aggregate provider outcomes: %w", err)
	}

	autos := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN final_outcome != 'REVERTED' THEN 1 ELSE 0 END), 0)
		FROM decision_records
		WHERE provider_id = ? AND verdict = 'AUTO_APPROVE'
	`

	err = r.getExecutor(ctx).QueryRowContext(ctx, autos, providerID).Scan(
		&h.AutoApproved,
		&h.AutoApprovedConfirmed,
	)
	if err != nil {
		r.logger.Error("Failed to aggregate auto-approvals", zap.String("provider_id", providerID), zap.Error(err))
		return entity.ProviderHistory{}, fmt.Errorf("failed to aggregate auto-approvals: %w", err)
	}

	return h, nil
}

func (r *DecisionRepository) scanRecord(row rowScanner) (*entity.DecisionRecord, error) {
	var rec entity.DecisionRecord
	var criteria string

	err := row.Scan(
		&rec.ID,
		&rec.InvoiceID,
		&rec.ProviderID,
		&rec.Verdict,
		&rec.Confidence,
		&rec.Justification,
		&rec.PatternClass,
		&rec.RefInvoiceID,
		&criteria,
		&rec.ConfigSnapshot,
		&rec.Overridden,
		&rec.OverriddenBy,
		&rec.OverrideReason,
		&rec.FinalOutcome,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if criteria != "" {
		if err := json.Unmarshal([]byte(criteria), &rec.Criteria); err != nil {
			return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
		}
	}

	return &rec, nil
}

// getExecutor returns appropriate executor based on context
func (r *DecisionRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := sqlite.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.DecisionRepository = (*DecisionRepository)(nil)
