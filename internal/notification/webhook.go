package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/port"
)

// WebhookNotifier delivers verdict notices as JSON POSTs to a configured
// endpoint. With no endpoint configured it degrades to logging the notice.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a webhook notifier. An empty url is allowed and
// turns the notifier into a log-only sink.
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// NotifyVerdict implements port.Notifier
func (n *WebhookNotifier) NotifyVerdict(ctx context.Context, notice port.VerdictNotice) error {
	if n.url == "" {
		n.logger.Info("Verdict issued",
			zap.String("invoice_id", notice.InvoiceID),
			zap.String("verdict", notice.Verdict),
			zap.Float64("confidence", notice.Confidence),
			zap.Strings("reasons", notice.Reasons),
		)
		return nil
	}

	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver verdict notice: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Verify interface compliance
var _ port.Notifier = (*WebhookNotifier)(nil)
