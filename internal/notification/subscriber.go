package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/dispatcher"
	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/domain/event"
)

// Subscriber bridges verdict events to the notifier and stamps the workflow
// with the delivery time
type Subscriber struct {
	notifier  port.Notifier
	workflows port.WorkflowRepository
	logger    *zap.Logger
}

// NewSubscriber creates a notification subscriber
func NewSubscriber(notifier port.Notifier, workflows port.WorkflowRepository, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		notifier:  notifier,
		workflows: workflows,
		logger:    logger,
	}
}

// Register subscribes the verdict handler on the dispatcher
func (s *Subscriber) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeVerdictIssued, "verdict-notifier", s.handleVerdict)
}

func (s *Subscriber) handleVerdict(ctx context.Context, evt *event.Event) error {
	notice := port.VerdictNotice{
		InvoiceID:  evt.InvoiceID,
		Verdict:    evt.PayloadString("verdict"),
		Confidence: evt.PayloadFloat("confidence"),
		Reasons:    evt.PayloadStrings("reasons"),
	}

	if err := s.notifier.NotifyVerdict(ctx, notice); err != nil {
		return fmt.Errorf("failed to notify verdict for invoice %s: %w", evt.InvoiceID, err)
	}

	if err := s.markNotified(ctx, evt.WorkflowID); err != nil {
		s.logger.Warn("Failed to stamp notification time",
			zap.String("workflow_id", evt.WorkflowID),
			zap.Error(err),
		)
	}

	return nil
}

func (s *Subscriber) markNotified(ctx context.Context, workflowID string) error {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf == nil {
		return fmt.Errorf("workflow %s not found", workflowID)
	}

	now := time.Now().UTC()
	wf.NotifiedAt = &now
	return s.workflows.Update(ctx, wf)
}
