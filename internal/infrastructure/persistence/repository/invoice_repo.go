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

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

const invoiceColumns = `id, provider_id, issue_date, amount, concept, purchase_order, created_at, updated_at`

// Create inserts a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, provider_id, issue_date, amount, concept, purchase_order,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		inv.ID,
		inv.ProviderID,
		inv.IssueDate,
		inv.Amount,
		inv.Concept,
		inv.PurchaseOrder,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.String("invoice_id", inv.ID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice by ID, nil when absent
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	inv, err := r.scanOne(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		r.logger.Error("Failed to get invoice by ID", zap.String("invoice_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// ListByProvider returns the provider's invoices issued at or after since, oldest first
func (r *InvoiceRepository) ListByProvider(ctx context.Context, providerID string, since time.Time) ([]*entity.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE provider_id = ? AND issue_date >= ?
		ORDER BY issue_date ASC, id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, providerID, since)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.String("provider_id", providerID), zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*entity.Invoice
	for rows.Next() {
		inv, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

// LatestInWindow returns the most recent invoice issued within [from, to],
// excluding excludeID. Nil when none exists.
func (r *InvoiceRepository) LatestInWindow(ctx context.Context, providerID string, from, to time.Time, excludeID string) (*entity.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE provider_id = ? AND issue_date BETWEEN ? AND ? AND id != ?
		ORDER BY issue_date DESC, id DESC
		LIMIT 1
	`

	inv, err := r.scanOne(r.getExecutor(ctx).QueryRowContext(ctx, query, providerID, from, to, excludeID))
	if err != nil {
		r.logger.Error("Failed to find reference invoice", zap.String("provider_id", providerID), zap.Error(err))
		return nil, fmt.Errorf("failed to find reference invoice: %w", err)
	}
	return inv, nil
}

// CountPurchaseOrderRefs counts prior invoices of the provider carrying the
// same purchase-order reference, excluding excludeID
func (r *InvoiceRepository) CountPurchaseOrderRefs(ctx context.Context, providerID, ref, excludeID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM invoices
		WHERE provider_id = ? AND purchase_order = ? AND id != ?
	`

	var count int
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, providerID, ref, excludeID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count purchase order refs", zap.String("provider_id", providerID), zap.Error(err))
		return 0, fmt.Errorf("failed to count purchase order refs: %w", err)
	}
	return count, nil
}

// Providers returns the distinct provider ids with at least one invoice
func (r *InvoiceRepository) Providers(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT provider_id FROM invoices ORDER BY provider_id`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list providers", zap.Error(err))
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan provider id: %w", err)
		}
		providers = append(providers, id)
	}

	return providers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *InvoiceRepository) scanOne(row *sql.Row) (*entity.Invoice, error) {
	inv, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return inv, err
}

func (r *InvoiceRepository) scanRow(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.ProviderID,
		&inv.IssueDate,
		&inv.Amount,
		&inv.Concept,
		&inv.PurchaseOrder,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// getExecutor returns appropriate executor based on context
func (r *InvoiceRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := sqlite.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
