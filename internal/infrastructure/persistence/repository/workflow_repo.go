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

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `id, invoice_id, provider_id, state, previous_state,
	assigned_reviewer, needs_configuration, intake_error, similarity,
	differences, terminal_outcome, received_at, analyzed_at, decided_at,
	notified_at, resolved_at, updated_at`

// Create inserts a new workflow instance. When an instance already exists for
// the invoice id the existing instance is returned with created=false, so
// duplicate intake stays idempotent under concurrent calls.
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.WorkflowInstance) (*entity.WorkflowInstance, bool, error) {
	differences, err := json.Marshal(wf.Differences)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal differences: %w", err)
	}

	now := time.Now().UTC()
	if wf.ReceivedAt.IsZero() {
		wf.ReceivedAt = now
	}
	wf.UpdatedAt = now

	query := `
		INSERT INTO workflow_instances (
			id, invoice_id, provider_id, state, previous_state,
			assigned_reviewer, needs_configuration, intake_error, similarity,
			differences, terminal_outcome, received_at, analyzed_at, decided_at,
			notified_at, resolved_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(invoice_id) DO NOTHING
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		wf.ID,
		wf.InvoiceID,
		wf.ProviderID,
		wf.State,
		wf.PreviousState,
		wf.AssignedReviewer,
		wf.NeedsConfiguration,
		wf.IntakeError,
		wf.Similarity,
		string(differences),
		wf.TerminalOutcome,
		wf.ReceivedAt,
		nullableTime(wf.AnalyzedAt),
		nullableTime(wf.DecidedAt),
		nullableTime(wf.NotifiedAt),
		nullableTime(wf.ResolvedAt),
		wf.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow instance",
			zap.String("invoice_id", wf.InvoiceID),
			zap.Error(err),
		)
		return nil, false, fmt.Errorf("failed to create workflow instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check workflow insert result: %w", err)
	}
	if affected == 0 {
		existing, err := r.GetByInvoiceID(ctx, wf.InvoiceID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("workflow for invoice %s vanished after conflict", wf.InvoiceID)
		}
		return existing, false, nil
	}

	return wf, true, nil
}

// GetByID retrieves a workflow instance by ID, nil when absent
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_instances WHERE id = ?`

	wf, err := r.scanInstance(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow by ID", zap.String("workflow_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// GetByInvoiceID retrieves the workflow instance for an invoice, nil when absent
func (r *WorkflowRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_instances WHERE invoice_id = ?`

	wf, err := r.scanInstance(r.getExecutor(ctx).QueryRowContext(ctx, query, invoiceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow by invoice ID", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// Update persists the full instance state
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.WorkflowInstance) error {
	differences, err := json.Marshal(wf.Differences)
	if err != nil {
		return fmt.Errorf("failed to marshal differences: %w", err)
	}

	wf.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workflow_instances SET
			state = ?, previous_state = ?, assigned_reviewer = ?,
			needs_configuration = ?, intake_error = ?, similarity = ?,
			differences = ?, terminal_outcome = ?, analyzed_at = ?,
			decided_at = ?, notified_at = ?, resolved_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		wf.State,
		wf.PreviousState,
		wf.AssignedReviewer,
		wf.NeedsConfiguration,
		wf.IntakeError,
		wf.Similarity,
		string(differences),
		wf.TerminalOutcome,
		nullableTime(wf.AnalyzedAt),
		nullableTime(wf.DecidedAt),
		nullableTime(wf.NotifiedAt),
		nullableTime(wf.ResolvedAt),
		wf.UpdatedAt,
		wf.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.String("workflow_id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check workflow update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("workflow %s not found", wf.ID)
	}

	return nil
}

func (r *WorkflowRepository) scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var wf entity.WorkflowInstance
	var differences string
	var analyzedAt, decidedAt, notifiedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&wf.ID,
		&wf.InvoiceID,
		&wf.ProviderID,
		&wf.State,
		&wf.PreviousState,
		&wf.AssignedReviewer,
		&wf.NeedsConfiguration,
		&wf.IntakeError,
		&wf.Similarity,
		&differences,
		&wf.TerminalOutcome,
		&wf.ReceivedAt,
		&analyzedAt,
		&decidedAt,
		&notifiedAt,
		&resolvedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if differences != "" && differences != "null" {
		if err := json.Unmarshal([]byte(differences), &wf.Differences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal differences: %w", err)
		}
	}

	if analyzedAt.Valid {
		wf.AnalyzedAt = &analyzedAt.Time
	}
	if decidedAt.Valid {
		wf.DecidedAt = &decidedAt.Time
	}
	if notifiedAt.Valid {
		wf.NotifiedAt = &notifiedAt.Time
	}
	if resolvedAt.Valid {
		wf.ResolvedAt = &resolvedAt.Time
	}

	return &wf, nil
}

// nullableTime converts an optional timestamp to a driver-friendly value
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// getExecutor returns appropriate executor based on context
func (r *WorkflowRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := sqlite.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
