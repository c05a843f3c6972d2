package port

import "context"

// VerdictNotice is the event handed to the notification dispatcher after a
// decision commits. Delivery failures stay with the dispatcher; they never
// roll back a committed decision.
type VerdictNotice struct {
	InvoiceID  string   `json:"invoice_id"`
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Notifier delivers verdict notices to interested parties
type Notifier interface {
	NotifyVerdict(ctx context.Context, notice VerdictNotice) error
}

// ReviewerDirectory resolves the human reviewer assigned to a provider.
// An empty reviewer with nil error means the provider is not configured.
type ReviewerDirectory interface {
	ReviewerFor(ctx context.Context, providerID string) (string, error)
}
