package entity

import (
	"math"
	"time"
)

// Invoice is one billing document received from a provider
type Invoice struct {
	ID            string
	ProviderID    string
	IssueDate     time.Time
	Amount        float64
	Concept       string // free-text description, normalized downstream
	PurchaseOrder string // optional purchase-order reference
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasValidAmount reports whether the amount is a positive finite number.
// Statistics and decision code assume this has been checked at intake.
func (i *Invoice) HasValidAmount() bool {
	return i.Amount > 0 && !math.IsInf(i.Amount, 0) && !math.IsNaN(i.Amount)
}

// ProviderHistory aggregates a provider's prior decision outcomes.
// It feeds both the trust scorer and the decision engine.
type ProviderHistory struct {
	TotalInvoices         int
	Approved              int // manually or automatically approved
	Rejected              int
	AutoApproved          int
	AutoApprovedConfirmed int // auto-approvals not later reverted by a human
	WithPurchaseOrder     int
}

// ApprovalRate returns the fraction of invoices approved, 0 when no history
func (h ProviderHistory) ApprovalRate() float64 {
	if h.TotalInvoices == 0 {
		return 0
	}
	return float64(h.Approved) / float64(h.TotalInvoices)
}

// AutoApprovalSuccessRate returns the fraction of auto-approvals that held up
func (h ProviderHistory) AutoApprovalSuccessRate() float64 {
	if h.AutoApproved == 0 {
		return 0
	}
	return float64(h.AutoApprovedConfirmed) / float64(h.AutoApproved)
}

// PurchaseOrderRate returns the fraction of invoices carrying a PO reference
func (h ProviderHistory) PurchaseOrderRate() float64 {
	if h.TotalInvoices == 0 {
		return 0
	}
	return float64(h.WithPurchaseOrder) / float64(h.TotalInvoices)
}
