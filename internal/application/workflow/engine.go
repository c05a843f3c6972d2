// Package workflow orchestrates the per-invoice approval pipeline: intake,
// prior-period comparison, decision, state transition and audit commit.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/dispatcher"
	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/config"
	"github.com/billwise/invoice-autopilot/internal/decision"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
	"github.com/billwise/invoice-autopilot/internal/domain/event"
	domainwf "github.com/billwise/invoice-autopilot/internal/domain/workflow"
	"github.com/billwise/invoice-autopilot/internal/normalizer"
)

// similarityAutoApprove is the structured-similarity percentage at or above
// which an invoice may be auto-approved, provided the decision engine agrees.
const similarityAutoApprove = 95.0

// defaultAmountTolerancePct is the month-over-month amount tolerance used
// when no pattern supplies a deviation-alert threshold.
const defaultAmountTolerancePct = 5.0

// Similarity weights for the prior-period comparison
const (
	weightProviderMatch = 40.0
	weightAmountMatch   = 40.0
	weightConceptMatch  = 20.0
)

// Engine runs invoices through the approval workflow
type Engine struct {
	invoices   port.InvoiceRepository
	workflows  port.WorkflowRepository
	patterns   port.PatternRepository
	scores     port.TrustScoreRepository
	decisions  port.DecisionRepository
	reviewers  port.ReviewerDirectory
	engine     *decision.Engine
	tx         port.TransactionManager
	dispatcher dispatcher.Dispatcher
	cfg        config.DecisionConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates the workflow pipeline engine
func NewEngine(
	invoices port.InvoiceRepository,
	workflows port.WorkflowRepository,
	patterns port.PatternRepository,
	scores port.TrustScoreRepository,
	decisions port.DecisionRepository,
	reviewers port.ReviewerDirectory,
	decisionEngine *decision.Engine,
	tx port.TransactionManager,
	d dispatcher.Dispatcher,
	cfg config.DecisionConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		invoices:   invoices,
		workflows:  workflows,
		patterns:   patterns,
		scores:     scores,
		decisions:  decisions,
		reviewers:  reviewers,
		engine:     decisionEngine,
		tx:         tx,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessInvoice runs one invoice through the pipeline. Calling it again for
// an invoice whose workflow already passed the analysis stage is a no-op
// returning the existing instance unchanged; an instance stranded before a
// decision was reached resumes from where it stopped.
func (e *Engine) ProcessInvoice(ctx context.Context, invoiceID string) (*entity.WorkflowInstance, error) {
	inv, err := e.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %s: %w", invoiceID, err)
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInvoice, invoiceID)
	}

	wf := &entity.WorkflowInstance{
		ID:         uuid.NewString(),
		InvoiceID:  inv.ID,
		ProviderID: inv.ProviderID,
		State:      domainwf.StateReceived.String(),
		ReceivedAt: e.now(),
		UpdatedAt:  e.now(),
	}
	wf, created, err := e.workflows.Create(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow for invoice %s: %w", invoiceID, err)
	}
	if !created {
		state := domainwf.State(wf.State)
		if state != domainwf.StateReceived && state != domainwf.StateAnalyzing {
			e.logger.Info("Workflow already exists for invoice, returning as-is",
				zap.String("invoice_id", invoiceID),
				zap.String("workflow_id", wf.ID),
				zap.String("state", wf.State),
			)
			return wf, nil
		}
		// A transient failure left the instance without a decision; re-running
		// the pipeline picks it back up instead of stranding the invoice.
		e.logger.Info("Resuming unfinished workflow",
			zap.String("invoice_id", invoiceID),
			zap.String("workflow_id", wf.ID),
			zap.String("state", wf.State),
		)
		if state == domainwf.StateAnalyzing {
			return e.analyze(ctx, inv, wf)
		}
	}

	// Intake validation happens before any analysis
	if !inv.HasValidAmount() {
		wf.IntakeError = fmt.Sprintf("invalid amount %.2f", inv.Amount)
		wf.UpdatedAt = e.now()
		if err := e.workflows.Update(ctx, wf); err != nil {
			return nil, fmt.Errorf("failed to flag invalid amount for invoice %s: %w", invoiceID, err)
		}
		return wf, fmt.Errorf("%w: invoice %s", ErrInvalidAmount, invoiceID)
	}

	if inv.ProviderID == "" {
		if err := e.applyTransition(ctx, wf, domainwf.TriggerQuarantine, func(w *entity.WorkflowInstance) {
			w.IntakeError = "provider could not be resolved"
		}); err != nil {
			return nil, err
		}
		return wf, fmt.Errorf("%w: invoice %s", ErrUnresolvedProvider, invoiceID)
	}

	reviewer, err := e.reviewers.ReviewerFor(ctx, inv.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reviewer for provider %s: %w", inv.ProviderID, err)
	}
	if reviewer == "" {
		// No reviewer routing configured: straight to review, bypassing analysis
		if err := e.applyTransition(ctx, wf, domainwf.TriggerRequestReview, func(w *entity.WorkflowInstance) {
			w.NeedsConfiguration = true
		}); err != nil {
			return nil, err
		}
		e.emitStateChanged(ctx, wf)
		return wf, nil
	}

	if err := e.applyTransition(ctx, wf, domainwf.TriggerStartAnalysis, func(w *entity.WorkflowInstance) {
		now := e.now()
		w.AssignedReviewer = reviewer
		w.AnalyzedAt = &now
	}); err != nil {
		return nil, err
	}

	return e.analyze(ctx, inv, wf)
}

// analyze gathers the decision inputs, evaluates the engine and the
// prior-period similarity, and commits the outcome atomically.
func (e *Engine) analyze(ctx context.Context, inv *entity.Invoice, wf *entity.WorkflowInstance) (*entity.WorkflowInstance, error) {
	_, hash := normalizer.Normalize(inv.Concept)
	pattern, err := e.patterns.GetByKey(ctx, inv.ProviderID, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern for invoice %s: %w", inv.ID, err)
	}

	score, err := e.scores.Get(ctx, inv.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust score for provider %s: %w", inv.ProviderID, err)
	}
	if score == nil {
		score = entity.NewNeutralTrustScore(inv.ProviderID)
	}

	history, err := e.decisions.ProviderHistory(ctx, inv.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for provider %s: %w", inv.ProviderID, err)
	}

	ref, err := e.findReference(ctx, inv)
	if err != nil {
		return nil, err
	}

	duplicatePO := false
	if inv.PurchaseOrder != "" {
		n, err := e.invoices.CountPurchaseOrderRefs(ctx, inv.ProviderID, inv.PurchaseOrder, inv.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check purchase order refs for invoice %s: %w", inv.ID, err)
		}
		duplicatePO = n > 0
	}

	in := decision.Input{
		Invoice:     inv,
		Pattern:     pattern,
		Trust:       score,
		History:     history,
		DuplicatePO: duplicatePO,
	}
	if ref != nil {
		refDate := ref.IssueDate
		in.ReferenceDate = &refDate
	}
	verdict := e.engine.Decide(in)

	similarity, differences := e.compare(inv, ref, pattern)
	autoApprove := ref != nil &&
		similarity >= similarityAutoApprove &&
		verdict.Verdict == entity.VerdictAutoApprove

	record := e.buildRecord(inv, pattern, ref, verdict)

	trigger := domainwf.TriggerRequestReview
	if autoApprove {
		trigger = domainwf.TriggerAutoApprove
	}

	// A busy commit makes the transaction manager replay the closure, so every
	// attempt must fire the trigger from the pre-transition state.
	fromState, fromPrevious := wf.State, wf.PreviousState
	err = e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		wf.State, wf.PreviousState = fromState, fromPrevious
		if err := e.applyTransition(txCtx, wf, trigger, func(w *entity.WorkflowInstance) {
			now := e.now()
			w.Similarity = similarity
			w.Differences = differences
			w.DecidedAt = &now
		}); err != nil {
			return err
		}
		if err := e.decisions.Create(txCtx, record); err != nil {
			return fmt.Errorf("failed to record decision for invoice %s: %w", inv.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Notification rides outside the transaction: a delivery failure must
	// never roll back a committed decision.
	e.emitVerdict(ctx, wf, record)
	e.emitStateChanged(ctx, wf)

	return wf, nil
}

// findReference locates the most recent invoice issued within ±5 days of one
// month before the current invoice's date.
func (e *Engine) findReference(ctx context.Context, inv *entity.Invoice) (*entity.Invoice, error) {
	target := inv.IssueDate.AddDate(0, -1, 0)
	from := target.AddDate(0, 0, -5)
	to := target.AddDate(0, 0, 5)

	ref, err := e.invoices.LatestInWindow(ctx, inv.ProviderID, from, to, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find reference invoice for %s: %w", inv.ID, err)
	}
	return ref, nil
}

// compare scores the invoice against its prior-period reference: provider
// identity 40, amount within tolerance 40, concept overlap 20. Every unmet
// criterion is recorded as a structured difference.
func (e *Engine) compare(inv, ref *entity.Invoice, pattern *entity.Pattern) (float64, []entity.FieldDifference) {
	if ref == nil {
		return 0, []entity.FieldDifference{{
			Field:    "reference",
			Current:  "none",
			Expected: "a comparable invoice from the prior period",
		}}
	}

	similarity := weightProviderMatch // reference lookup is already provider-scoped
	var differences []entity.FieldDifference

	tolerance := defaultAmountTolerancePct
	if pattern != nil && pattern.AlertThreshold > 0 {
		tolerance = pattern.AlertThreshold
	}
	deviation := 100.0
	if ref.Amount != 0 {
		deviation = (inv.Amount - ref.Amount) / ref.Amount * 100
		if deviation < 0 {
			deviation = -deviation
		}
	}
	if deviation <= tolerance {
		similarity += weightAmountMatch
	} else {
		differences = append(differences, entity.FieldDifference{
			Field:    "amount",
			Current:  fmt.Sprintf("%.2f (%.1f%% off)", inv.Amount, deviation),
			Expected: fmt.Sprintf("within %.1f%% of %.2f", tolerance, ref.Amount),
		})
	}

	if normalizer.Similar(inv.Concept, ref.Concept) {
		similarity += weightConceptMatch
	} else {
		differences = append(differences, entity.FieldDifference{
			Field:    "concept",
			Current:  inv.Concept,
			Expected: fmt.Sprintf("at least %.0f%% token overlap with %q", normalizer.SimilarityThreshold*100, ref.Concept),
		})
	}

	return similarity, differences
}

func (e *Engine) buildRecord(inv *entity.Invoice, pattern *entity.Pattern, ref *entity.Invoice, d decision.Decision) *entity.DecisionRecord {
	record := &entity.DecisionRecord{
		ID:            uuid.NewString(),
		InvoiceID:     inv.ID,
		ProviderID:    inv.ProviderID,
		Verdict:       d.Verdict,
		Confidence:    d.Confidence,
		Justification: d.Justification,
		Criteria:      d.Criteria,
		CreatedAt:     e.now(),
	}
	if pattern != nil {
		record.PatternClass = pattern.Class
	}
	if ref != nil {
		record.RefInvoiceID = ref.ID
	}
	if snapshot, err := json.Marshal(e.cfg); err == nil {
		record.ConfigSnapshot = string(snapshot)
	}
	return record
}

// Override applies a manual decision by an authorized actor.
// Supported verbs: approve (PENDING_REVIEW only), reject (any non-terminal
// state), revert (AUTO_APPROVED back to review).
func (e *Engine) Override(ctx context.Context, workflowID, actor, verb, reason string) (*entity.WorkflowInstance, error) {
	wf, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	var trigger domainwf.Trigger
	switch verb {
	case "approve":
		trigger = domainwf.TriggerManualApprove
	case "reject":
		trigger = domainwf.TriggerReject
	case "revert":
		trigger = domainwf.TriggerRevert
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOverride, verb)
	}

	// Same replay contract as the analysis commit: a retried attempt starts
	// from the pre-transition state.
	fromState, fromPrevious := wf.State, wf.PreviousState
	err = e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		wf.State, wf.PreviousState = fromState, fromPrevious
		if err := e.applyTransition(txCtx, wf, trigger, func(w *entity.WorkflowInstance) {
			now := e.now()
			if domainwf.State(w.State).IsTerminal() {
				w.TerminalOutcome = w.State
				w.ResolvedAt = &now
			}
		}); err != nil {
			return err
		}
		return e.recordOverride(txCtx, wf, actor, verb, reason)
	})
	if err != nil {
		return nil, err
	}

	e.emitStateChanged(ctx, wf)

	e.logger.Info("Manual override applied",
		zap.String("workflow_id", wf.ID),
		zap.String("invoice_id", wf.InvoiceID),
		zap.String("actor", actor),
		zap.String("verb", verb),
		zap.String("state", wf.State),
	)

	return wf, nil
}

// recordOverride appends the human outcome to the latest decision record, or
// creates a manual record when the invoice never reached the engine.
func (e *Engine) recordOverride(ctx context.Context, wf *entity.WorkflowInstance, actor, verb, reason string) error {
	latest, err := e.decisions.GetLatestByInvoice(ctx, wf.InvoiceID)
	if err != nil {
		return fmt.Errorf("failed to load decision record for invoice %s: %w", wf.InvoiceID, err)
	}

	if latest == nil {
		// The verdict stays MANUAL_REVIEW: a human acted, the engine never
		// did, and the override fields carry the actual outcome.
		record := &entity.DecisionRecord{
			ID:            uuid.NewString(),
			InvoiceID:     wf.InvoiceID,
			ProviderID:    wf.ProviderID,
			Verdict:       entity.VerdictManualReview,
			Justification: fmt.Sprintf("manual %s by %s: %s", verb, actor, reason),
			Overridden:    true,
			OverriddenBy:  actor,
			FinalOutcome:  entity.OutcomeModified,
			CreatedAt:     e.now(),
		}
		if err := e.decisions.Create(ctx, record); err != nil {
			return fmt.Errorf("failed to record manual decision for invoice %s: %w", wf.InvoiceID, err)
		}
		return nil
	}

	outcome := reconcile(latest.Verdict, verb)
	if err := e.decisions.AppendOverride(ctx, latest.ID, actor, reason, outcome); err != nil {
		return fmt.Errorf("failed to append override for invoice %s: %w", wf.InvoiceID, err)
	}
	return nil
}

// reconcile maps a human action against the automated verdict
func reconcile(verdict entity.Verdict, verb string) entity.FinalOutcome {
	switch verb {
	case "approve":
		if verdict == entity.VerdictAutoApprove {
			return entity.OutcomeConfirmed
		}
		return entity.OutcomeModified
	case "reject", "revert":
		if verdict == entity.VerdictAutoApprove {
			return entity.OutcomeReverted
		}
		return entity.OutcomeModified
	}
	return entity.OutcomeModified
}

// applyTransition fires the trigger against a machine positioned at the
// instance's current state and persists the result.
func (e *Engine) applyTransition(ctx context.Context, wf *entity.WorkflowInstance, trigger domainwf.Trigger, mutate func(*entity.WorkflowInstance)) error {
	machine := domainwf.NewApprovalMachine(domainwf.State(wf.State))
	if err := machine.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("workflow %s: %w", wf.ID, err)
	}

	wf.PreviousState = wf.State
	wf.State = machine.State().String()
	wf.UpdatedAt = e.now()
	if mutate != nil {
		mutate(wf)
	}

	if err := e.workflows.Update(ctx, wf); err != nil {
		return fmt.Errorf("failed to persist workflow %s: %w", wf.ID, err)
	}
	return nil
}

func (e *Engine) emitVerdict(ctx context.Context, wf *entity.WorkflowInstance, record *entity.DecisionRecord) {
	reasons := make([]string, 0, len(record.Criteria))
	for _, c := range record.Criteria {
		if !c.Satisfied {
			reasons = append(reasons, fmt.Sprintf("%s: %s", c.Name, c.Observed))
		}
	}
	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeVerdictIssued, wf.InvoiceID, wf.ID, map[string]interface{}{
		"verdict":    record.Verdict.String(),
		"confidence": record.Confidence,
		"reasons":    reasons,
	}))
}

func (e *Engine) emitStateChanged(ctx context.Context, wf *entity.WorkflowInstance) {
	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeWorkflowStateChanged, wf.InvoiceID, wf.ID, map[string]interface{}{
		"provider_id":    wf.ProviderID,
		"previous_state": wf.PreviousState,
		"new_state":      wf.State,
	}))
}
