package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
	"github.com/billwise/invoice-autopilot/pkg/utils"
)

// IntakeRequest is one invoice submitted for processing. The amount and
// provider are accepted as-is; the pipeline routes malformed values to the
// intake-error and quarantine paths instead of rejecting them here.
type IntakeRequest struct {
	ID            string    `json:"id"`
	ProviderID    string    `json:"provider_id"`
	IssueDate     time.Time `json:"issue_date"`
	Amount        float64   `json:"amount"`
	Concept       string    `json:"concept"`
	PurchaseOrder string    `json:"purchase_order"`
}

// InvoiceView is the external representation of a stored invoice
type InvoiceView struct {
	ID            string    `json:"id"`
	ProviderID    string    `json:"provider_id"`
	IssueDate     time.Time `json:"issue_date"`
	Amount        float64   `json:"amount"`
	Concept       string    `json:"concept"`
	PurchaseOrder string    `json:"purchase_order,omitempty"`
}

// InvoiceService handles invoice intake and lookup
type InvoiceService interface {
	Intake(ctx context.Context, req IntakeRequest) (*InvoiceView, error)
	Get(ctx context.Context, id string) (*InvoiceView, error)
}

type invoiceServiceImpl struct {
	invoices port.InvoiceRepository
	logger   *zap.Logger
}

// NewInvoiceService creates an InvoiceService
func NewInvoiceService(invoices port.InvoiceRepository, logger *zap.Logger) InvoiceService {
	return &invoiceServiceImpl{invoices: invoices, logger: logger}
}

// Intake validates and stores one invoice. A missing id gets a generated one;
// resubmitting a known id returns the stored invoice unchanged.
func (s *invoiceServiceImpl) Intake(ctx context.Context, req IntakeRequest) (*InvoiceView, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := utils.ValidateInvoiceID(req.ID); err != nil {
		return nil, err
	}
	if err := utils.ValidateConcept(req.Concept); err != nil {
		return nil, err
	}
	if err := utils.ValidateIssueDate(req.IssueDate); err != nil {
		return nil, err
	}

	existing, err := s.invoices.GetByID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check invoice %s: %w", req.ID, err)
	}
	if existing != nil {
		s.logger.Info("Invoice already stored, intake is a no-op", zap.String("invoice_id", req.ID))
		return toInvoiceView(existing), nil
	}

	inv := &entity.Invoice{
		ID:            req.ID,
		ProviderID:    utils.SanitizeString(req.ProviderID),
		IssueDate:     req.IssueDate,
		Amount:        req.Amount,
		Concept:       utils.SanitizeString(req.Concept),
		PurchaseOrder: utils.SanitizeString(req.PurchaseOrder),
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info("Invoice stored",
		zap.String("invoice_id", inv.ID),
		zap.String("provider_id", inv.ProviderID),
		zap.Float64("amount", inv.Amount),
	)

	return toInvoiceView(inv), nil
}

func (s *invoiceServiceImpl) Get(ctx context.Context, id string) (*InvoiceView, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, nil
	}
	return toInvoiceView(inv), nil
}

func toInvoiceView(inv *entity.Invoice) *InvoiceView {
	return &InvoiceView{
		ID:            inv.ID,
		ProviderID:    inv.ProviderID,
		IssueDate:     inv.IssueDate,
		Amount:        inv.Amount,
		Concept:       inv.Concept,
		PurchaseOrder: inv.PurchaseOrder,
	}
}
