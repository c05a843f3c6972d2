package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/application/workflow"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
)

// DecideResult is the outcome of running one invoice through the pipeline
type DecideResult struct {
	Verdict       string  `json:"verdict"`
	Confidence    float64 `json:"confidence"`
	WorkflowState string  `json:"workflow_state"`
}

// WorkflowView is the external representation of a workflow instance
type WorkflowView struct {
	ID                 string                   `json:"id"`
	InvoiceID          string                   `json:"invoice_id"`
	ProviderID         string                   `json:"provider_id"`
	State              string                   `json:"state"`
	PreviousState      string                   `json:"previous_state,omitempty"`
	AssignedReviewer   string                   `json:"assigned_reviewer,omitempty"`
	NeedsConfiguration bool                     `json:"needs_configuration,omitempty"`
	IntakeError        string                   `json:"intake_error,omitempty"`
	Similarity         float64                  `json:"similarity"`
	Differences        []entity.FieldDifference `json:"differences,omitempty"`
	TerminalOutcome    string                   `json:"terminal_outcome,omitempty"`
}

// DecisionService exposes the per-invoice pipeline operations
type DecisionService interface {
	// Decide runs the invoice through the workflow pipeline and reports the
	// committed verdict. Re-running for a decided invoice returns the existing
	// outcome without re-deciding.
	Decide(ctx context.Context, invoiceID string) (*DecideResult, error)

	// Override applies a manual verdict by an authorized actor
	Override(ctx context.Context, workflowID, actor, verb, reason string) (*WorkflowView, error)

	// GetWorkflow returns the workflow instance by id
	GetWorkflow(ctx context.Context, workflowID string) (*WorkflowView, error)
}

type decisionServiceImpl struct {
	pipeline  *workflow.Engine
	workflows port.WorkflowRepository
	decisions port.DecisionRepository
	logger    *zap.Logger
}

// NewDecisionService creates a DecisionService
func NewDecisionService(
	pipeline *workflow.Engine,
	workflows port.WorkflowRepository,
	decisions port.DecisionRepository,
	logger *zap.Logger,
) DecisionService {
	return &decisionServiceImpl{
		pipeline:  pipeline,
		workflows: workflows,
		decisions: decisions,
		logger:    logger,
	}
}

func (s *decisionServiceImpl) Decide(ctx context.Context, invoiceID string) (*DecideResult, error) {
	wf, err := s.pipeline.ProcessInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	result := &DecideResult{WorkflowState: wf.State}
	record, err := s.decisions.GetLatestByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load decision record for invoice %s: %w", invoiceID, err)
	}
	if record != nil {
		result.Verdict = record.Verdict.String()
		result.Confidence = record.Confidence
	}
	return result, nil
}

func (s *decisionServiceImpl) Override(ctx context.Context, workflowID, actor, verb, reason string) (*WorkflowView, error) {
	if actor == "" {
		return nil, fmt.Errorf("override requires an actor")
	}
	wf, err := s.pipeline.Override(ctx, workflowID, actor, verb, reason)
	if err != nil {
		return nil, err
	}
	return toView(wf), nil
}

func (s *decisionServiceImpl) GetWorkflow(ctx context.Context, workflowID string) (*WorkflowView, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}
	if wf == nil {
		return nil, workflow.ErrUnknownWorkflow
	}
	return toView(wf), nil
}

func toView(wf *entity.WorkflowInstance) *WorkflowView {
	return &WorkflowView{
		ID:                 wf.ID,
		InvoiceID:          wf.InvoiceID,
		ProviderID:         wf.ProviderID,
		State:              wf.State,
		PreviousState:      wf.PreviousState,
		AssignedReviewer:   wf.AssignedReviewer,
		NeedsConfiguration: wf.NeedsConfiguration,
		IntakeError:        wf.IntakeError,
		Similarity:         wf.Similarity,
		Differences:        wf.Differences,
		TerminalOutcome:    wf.TerminalOutcome,
	}
}
