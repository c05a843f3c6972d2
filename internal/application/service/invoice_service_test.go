package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/domain/entity"
)

type memInvoiceRepo struct {
	byID map[string]*entity.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{byID: make(map[string]*entity.Invoice)}
}

func (m *memInvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	cp := *inv
	m.byID[inv.ID] = &cp
	return nil
}

func (m *memInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	if inv, ok := m.byID[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, nil
}

func (m *memInvoiceRepo) ListByProvider(ctx context.Context, providerID string, since time.Time) ([]*entity.Invoice, error) {
	return nil, nil
}

func (m *memInvoiceRepo) LatestInWindow(ctx context.Context, providerID string, from, to time.Time, excludeID string) (*entity.Invoice, error) {
	return nil, nil
}

func (m *memInvoiceRepo) CountPurchaseOrderRefs(ctx context.Context, providerID, ref, excludeID string) (int, error) {
	return 0, nil
}

func (m *memInvoiceRepo) Providers(ctx context.Context) ([]string, error) { return nil, nil }

func validIntake() IntakeRequest {
	return IntakeRequest{
		ID:         "inv-1",
		ProviderID: "prov-1",
		IssueDate:  time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC),
		Amount:     1500,
		Concept:    "alquiler local",
	}
}

func TestIntakeStoresInvoice(t *testing.T) {
	repo := newMemInvoiceRepo()
	svc := NewInvoiceService(repo, zap.NewNop())

	view, err := svc.Intake(context.Background(), validIntake())
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	if view.ID != "inv-1" {
		t.Errorf("expected inv-1, got %s", view.ID)
	}
	if _, ok := repo.byID["inv-1"]; !ok {
		t.Error("invoice not persisted")
	}
}

func TestIntakeGeneratesMissingID(t *testing.T) {
	repo := newMemInvoiceRepo()
	svc := NewInvoiceService(repo, zap.NewNop())

	req := validIntake()
	req.ID = ""
	view, err := svc.Intake(context.Background(), req)
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	if view.ID == "" {
		t.Error("expected a generated id")
	}
}

func TestIntakeIsIdempotent(t *testing.T) {
	repo := newMemInvoiceRepo()
	svc := NewInvoiceService(repo, zap.NewNop())

	first, err := svc.Intake(context.Background(), validIntake())
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}

	// Resubmission with different fields returns the stored invoice untouched
	req := validIntake()
	req.Amount = 9999
	second, err := svc.Intake(context.Background(), req)
	if err != nil {
		t.Fatalf("second Intake: %v", err)
	}
	if second.Amount != first.Amount {
		t.Errorf("resubmission must not change the stored invoice, got %.2f", second.Amount)
	}
}

func TestIntakeValidation(t *testing.T) {
	repo := newMemInvoiceRepo()
	svc := NewInvoiceService(repo, zap.NewNop())

	tests := []struct {
		name   string
		mutate func(r *IntakeRequest)
	}{
		{"empty concept", func(r *IntakeRequest) { r.Concept = "   " }},
		{"zero issue date", func(r *IntakeRequest) { r.IssueDate = time.Time{} }},
		{"far future issue date", func(r *IntakeRequest) { r.IssueDate = time.Now().AddDate(2, 0, 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validIntake()
			tt.mutate(&req)
			if _, err := svc.Intake(context.Background(), req); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestIntakeAcceptsMalformedAmountAndProvider(t *testing.T) {
	repo := newMemInvoiceRepo()
	svc := NewInvoiceService(repo, zap.NewNop())

	// The pipeline, not intake, routes these to error and quarantine paths
	req := validIntake()
	req.Amount = -50
	req.ProviderID = ""
	if _, err := svc.Intake(context.Background(), req); err != nil {
		t.Errorf("intake must accept malformed amount and provider, got %v", err)
	}
}
