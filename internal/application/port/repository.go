package port

import (
	"context"
	"time"

	"github.com/billwise/invoice-autopilot/internal/domain/entity"
)

// InvoiceRepository defines persistence operations for Invoice
type InvoiceRepository interface {
	Create(ctx context.Context, inv *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	// ListByProvider returns the provider's invoices issued at or after since,
	// oldest first.
	ListByProvider(ctx context.Context, providerID string, since time.Time) ([]*entity.Invoice, error)
	// LatestInWindow returns the most recent invoice for the provider issued
	// within [from, to], excluding excludeID. Nil when none exists.
	LatestInWindow(ctx context.Context, providerID string, from, to time.Time, excludeID string) (*entity.Invoice, error)
	// CountPurchaseOrderRefs counts prior invoices of the provider carrying the
	// same purchase-order reference, excluding excludeID.
	CountPurchaseOrderRefs(ctx context.Context, providerID, ref, excludeID string) (int, error)
	// Providers returns the distinct provider ids with at least one invoice
	Providers(ctx context.Context) ([]string, error)
}

// PatternRepository defines persistence operations for Pattern.
// The upsert key is (provider id, concept hash).
type PatternRepository interface {
	Upsert(ctx context.Context, p *entity.Pattern) (created bool, err error)
	GetByKey(ctx context.Context, providerID, conceptHash string) (*entity.Pattern, error)
	ListByProvider(ctx context.Context, providerID string) ([]*entity.Pattern, error)
}

// TrustScoreRepository defines persistence operations for TrustScore, keyed by provider id
type TrustScoreRepository interface {
	Get(ctx context.Context, providerID string) (*entity.TrustScore, error)
	Upsert(ctx context.Context, ts *entity.TrustScore) error
}

// DecisionRepository defines append-only persistence for DecisionRecord.
// Records are never mutated except to attach override fields after the fact.
type DecisionRepository interface {
	Create(ctx context.Context, rec *entity.DecisionRecord) error
	GetLatestByInvoice(ctx context.Context, invoiceID string) (*entity.DecisionRecord, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.DecisionRecord, error)
	AppendOverride(ctx context.Context, id, actor, reason string, outcome entity.FinalOutcome) error
	// ProviderHistory aggregates the provider's decision outcomes across all invoices
	ProviderHistory(ctx context.Context, providerID string) (entity.ProviderHistory, error)
}

// WorkflowRepository defines persistence for WorkflowInstance.
// Create resolves duplicate invoice ids to the existing instance instead of erroring.
type WorkflowRepository interface {
	// Create inserts the instance, or returns the already-existing instance for
	// the same invoice id with created=false.
	Create(ctx context.Context, wf *entity.WorkflowInstance) (existing *entity.WorkflowInstance, created bool, err error)
	GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.WorkflowInstance, error)
	Update(ctx context.Context, wf *entity.WorkflowInstance) error
}

// TransactionManager executes a function within a storage transaction
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
