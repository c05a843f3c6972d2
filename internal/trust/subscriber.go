package trust

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/dispatcher"
	"github.com/billwise/invoice-autopilot/internal/domain/event"
	domainwf "github.com/billwise/invoice-autopilot/internal/domain/workflow"
)

// Subscriber rescores a provider whenever one of its workflows reaches a
// state that carries a decision outcome, so trust scores track the decision
// history without waiting for a manual recompute.
type Subscriber struct {
	scorer *Scorer
	logger *zap.Logger
}

// NewSubscriber creates a trust rescoring subscriber
func NewSubscriber(scorer *Scorer, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		scorer: scorer,
		logger: logger,
	}
}

// Register subscribes the rescoring handler on the dispatcher
func (s *Subscriber) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeWorkflowStateChanged, "trust-rescorer", s.handleStateChanged)
}

func (s *Subscriber) handleStateChanged(ctx context.Context, evt *event.Event) error {
	if !outcomeState(domainwf.State(evt.PayloadString("new_state"))) {
		return nil
	}
	providerID := evt.PayloadString("provider_id")
	if providerID == "" {
		return nil
	}

	if _, err := s.scorer.Recompute(ctx, providerID); err != nil {
		return fmt.Errorf("failed to rescore provider %s: %w", providerID, err)
	}
	return nil
}

// outcomeState reports whether the state contributes a new outcome to the
// provider's decision history
func outcomeState(state domainwf.State) bool {
	switch state {
	case domainwf.StateAutoApproved, domainwf.StateManuallyApproved, domainwf.StateRejected:
		return true
	}
	return false
}
