package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/dispatcher"
	"github.com/billwise/invoice-autopilot/internal/config"
	"github.com/billwise/invoice-autopilot/internal/decision"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
	domainwf "github.com/billwise/invoice-autopilot/internal/domain/workflow"
)

type mockInvoiceRepo struct {
	getByIDFn        func(ctx context.Context, id string) (*entity.Invoice, error)
	latestInWindowFn func(ctx context.Context, providerID string, from, to time.Time, excludeID string) (*entity.Invoice, error)
	countPORefsFn    func(ctx context.Context, providerID, ref, excludeID string) (int, error)
}

func (m *mockInvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error { return nil }

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockInvoiceRepo) ListByProvider(ctx context.Context, providerID string, since time.Time) ([]*entity.Invoice, error) {
	return nil, nil
}

func (m *mockInvoiceRepo) LatestInWindow(ctx context.Context, providerID string, from, to time.Time, excludeID string) (*entity.Invoice, error) {
	if m.latestInWindowFn != nil {
		return m.latestInWindowFn(ctx, providerID, from, to, excludeID)
	}
	return nil, nil
}

func (m *mockInvoiceRepo) CountPurchaseOrderRefs(ctx context.Context, providerID, ref, excludeID string) (int, error) {
	if m.countPORefsFn != nil {
		return m.countPORefsFn(ctx, providerID, ref, excludeID)
	}
	return 0, nil
}

func (m *mockInvoiceRepo) Providers(ctx context.Context) ([]string, error) { return nil, nil }

type mockWorkflowRepo struct {
	createFn func(ctx context.Context, wf *entity.WorkflowInstance) (*entity.WorkflowInstance, bool, error)
	byID     map[string]*entity.WorkflowInstance
	updates  int
}

func (m *mockWorkflowRepo) Create(ctx context.Context, wf *entity.WorkflowInstance) (*entity.WorkflowInstance, bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, wf)
	}
	return wf, true, nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	if wf, ok := m.byID[id]; ok {
		return wf, nil
	}
	return nil, nil
}

func (m *mockWorkflowRepo) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.WorkflowInstance, error) {
	return nil, nil
}

func (m *mockWorkflowRepo) Update(ctx context.Context, wf *entity.WorkflowInstance) error {
	m.updates++
	return nil
}

type mockPatternRepo struct {
	getByKeyFn func(ctx context.Context, providerID, conceptHash string) (*entity.Pattern, error)
}

func (m *mockPatternRepo) Upsert(ctx context.Context, p *entity.Pattern) (bool, error) {
	return false, nil
}

func (m *mockPatternRepo) GetByKey(ctx context.Context, providerID, conceptHash string) (*entity.Pattern, error) {
	if m.getByKeyFn != nil {
		return m.getByKeyFn(ctx, providerID, conceptHash)
	}
	return nil, nil
}

func (m *mockPatternRepo) ListByProvider(ctx context.Context, providerID string) ([]*entity.Pattern, error) {
	return nil, nil
}

type mockTrustRepo struct {
	getFn func(ctx context.Context, providerID string) (*entity.TrustScore, error)
}

func (m *mockTrustRepo) Get(ctx context.Context, providerID string) (*entity.TrustScore, error) {
	if m.getFn != nil {
		return m.getFn(ctx, providerID)
	}
	return nil, nil
}

func (m *mockTrustRepo) Upsert(ctx context.Context, ts *entity.TrustScore) error { return nil }

type appendedOverride struct {
	id      string
	actor   string
	reason  string
	outcome entity.FinalOutcome
}

type mockDecisionRepo struct {
	historyFn  func(ctx context.Context, providerID string) (entity.ProviderHistory, error)
	latestFn   func(ctx context.Context, invoiceID string) (*entity.DecisionRecord, error)
	created    []*entity.DecisionRecord
	overridden []appendedOverride
}

func (m *mockDecisionRepo) Create(ctx context.Context, rec *entity.DecisionRecord) error {
	m.created = append(m.created, rec)
	return nil
}

func (m *mockDecisionRepo) GetLatestByInvoice(ctx context.Context, invoiceID string) (*entity.DecisionRecord, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, invoiceID)
	}
	return nil, nil
}

func (m *mockDecisionRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.DecisionRecord, error) {
	return nil, nil
}

func (m *mockDecisionRepo) AppendOverride(ctx context.Context, id, actor, reason string, outcome entity.FinalOutcome) error {
	m.overridden = append(m.overridden, appendedOverride{id: id, actor: actor, reason: reason, outcome: outcome})
	return nil
}

func (m *mockDecisionRepo) ProviderHistory(ctx context.Context, providerID string) (entity.ProviderHistory, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, providerID)
	}
	return entity.ProviderHistory{}, nil
}

type mockReviewers struct {
	reviewerFn func(ctx context.Context, providerID string) (string, error)
}

func (m *mockReviewers) ReviewerFor(ctx context.Context, providerID string) (string, error) {
	if m.reviewerFn != nil {
		return m.reviewerFn(ctx, providerID)
	}
	return "reviewer@billwise.example", nil
}

type mockTxManager struct {
	withTransactionFn func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFn != nil {
		return m.withTransactionFn(ctx, fn)
	}
	return fn(ctx)
}

// replayOnce imitates a busy commit: the first attempt is rolled back and the
// closure runs a second time.
func replayOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

type engineFixture struct {
	invoices  *mockInvoiceRepo
	workflows *mockWorkflowRepo
	patterns  *mockPatternRepo
	scores    *mockTrustRepo
	decisions *mockDecisionRepo
	reviewers *mockReviewers
	tx        *mockTxManager
	engine    *Engine
}

func pipelineConfig() config.DecisionConfig {
	return config.DecisionConfig{
		AutoApproveConfidence:     0.85,
		ManualReviewFloor:         0.40,
		MaxAutoApproveAmount:      10000,
		DateProximityDays:         7,
		AmountCeilingVariationPct: 30,
		Weights: config.CriteriaWeights{
			Recurrence:    0.35,
			Trust:         0.20,
			Amount:        0.15,
			DateProximity: 0.15,
			PurchaseOrder: 0.10,
			ApprovalRatio: 0.05,
		},
	}
}

func newFixture() *engineFixture {
	f := &engineFixture{
		invoices:  &mockInvoiceRepo{},
		workflows: &mockWorkflowRepo{},
		patterns:  &mockPatternRepo{},
		scores:    &mockTrustRepo{},
		decisions: &mockDecisionRepo{},
		reviewers: &mockReviewers{},
		tx:        &mockTxManager{},
	}
	cfg := pipelineConfig()
	logger := zap.NewNop()
	f.engine = NewEngine(
		f.invoices, f.workflows, f.patterns, f.scores, f.decisions, f.reviewers,
		decision.NewEngine(cfg, logger),
		f.tx,
		dispatcher.New(logger),
		cfg,
		logger,
	)
	f.engine.now = func() time.Time {
		return time.Date(2025, 12, 5, 9, 0, 0, 0, time.UTC)
	}
	return f
}

func monthlyInvoice(id string, issue time.Time, amount float64) *entity.Invoice {
	return &entity.Invoice{
		ID:         id,
		ProviderID: "prov-1",
		IssueDate:  issue,
		Amount:     amount,
		Concept:    "alquiler local",
	}
}

// primeRecurringScenario wires a fully satisfied decision: eligible pattern,
// matching prior-period reference, solid approval history.
func primeRecurringScenario(f *engineFixture) {
	issue := time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC)
	inv := monthlyInvoice("inv-dec", issue, 1500)
	ref := monthlyInvoice("inv-nov", issue.AddDate(0, 0, -30), 1500)

	f.invoices.getByIDFn = func(ctx context.Context, id string) (*entity.Invoice, error) {
		if id == inv.ID {
			return inv, nil
		}
		return nil, nil
	}
	f.invoices.latestInWindowFn = func(ctx context.Context, providerID string, from, to time.Time, excludeID string) (*entity.Invoice, error) {
		return ref, nil
	}
	f.patterns.getByKeyFn = func(ctx context.Context, providerID, conceptHash string) (*entity.Pattern, error) {
		return &entity.Pattern{
			ProviderID:     "prov-1",
			Class:          entity.PatternFixed,
			MeanAmount:     1500,
			CV:             0.8,
			PaymentCount:   12,
			MonthCount:     12,
			Periodicity:    entity.PeriodicityMonthly,
			AutoEligible:   true,
			AlertThreshold: 15,
		}, nil
	}
	f.decisions.historyFn = func(ctx context.Context, providerID string) (entity.ProviderHistory, error) {
		return entity.ProviderHistory{
			TotalInvoices:         10,
			Approved:              10,
			AutoApproved:          6,
			AutoApprovedConfirmed: 6,
			WithPurchaseOrder:     1,
		}, nil
	}
}

func TestProcessInvoiceAutoApproves(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice: %v", err)
	}

	if wf.State != domainwf.StateAutoApproved.String() {
		t.Errorf("expected AUTO_APPROVED, got %s", wf.State)
	}
	if wf.Similarity < 95 {
		t.Errorf("expected similarity >= 95, got %.1f", wf.Similarity)
	}
	if wf.DecidedAt == nil {
		t.Error("DecidedAt should be set")
	}
	if wf.AssignedReviewer == "" {
		t.Error("reviewer should be assigned before analysis")
	}

	if len(f.decisions.created) != 1 {
		t.Fatalf("expected one decision record, got %d", len(f.decisions.created))
	}
	rec := f.decisions.created[0]
	if rec.Verdict != entity.VerdictAutoApprove {
		t.Errorf("expected AUTO_APPROVE verdict, got %s", rec.Verdict)
	}
	if rec.RefInvoiceID != "inv-nov" {
		t.Errorf("expected reference inv-nov, got %q", rec.RefInvoiceID)
	}
	if len(rec.Criteria) != 6 {
		t.Errorf("expected 6 criteria in the record, got %d", len(rec.Criteria))
	}
	if rec.ConfigSnapshot == "" {
		t.Error("decision record should carry the config snapshot")
	}
}

func TestProcessInvoiceNoReferenceGoesToReview(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)
	// Strong verdict but nothing comparable from the prior period
	f.invoices.latestInWindowFn = nil

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice: %v", err)
	}

	if wf.State != domainwf.StatePendingReview.String() {
		t.Errorf("expected PENDING_REVIEW without a reference, got %s", wf.State)
	}
	if len(wf.Differences) == 0 || wf.Differences[0].Field != "reference" {
		t.Errorf("expected a recorded reference difference, got %v", wf.Differences)
	}
}

func TestProcessInvoiceAmountDriftGoesToReview(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)

	// Same invoice, but 40% above the recurring amount
	issue := time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC)
	drifted := monthlyInvoice("inv-dec", issue, 2100)
	f.invoices.getByIDFn = func(ctx context.Context, id string) (*entity.Invoice, error) {
		return drifted, nil
	}

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice: %v", err)
	}

	if wf.State != domainwf.StatePendingReview.String() {
		t.Errorf("expected PENDING_REVIEW, got %s", wf.State)
	}
	foundAmount := false
	for _, d := range wf.Differences {
		if d.Field == "amount" {
			foundAmount = true
		}
	}
	if !foundAmount {
		t.Errorf("expected an amount difference, got %v", wf.Differences)
	}
}

func TestProcessInvoiceIsIdempotent(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)

	existing := &entity.WorkflowInstance{
		ID:        "wf-1",
		InvoiceID: "inv-dec",
		State:     domainwf.StateAutoApproved.String(),
	}
	f.workflows.createFn = func(ctx context.Context, wf *entity.WorkflowInstance) (*entity.WorkflowInstance, bool, error) {
		return existing, false, nil
	}

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice: %v", err)
	}
	if wf != existing {
		t.Error("expected the existing instance back")
	}
	if f.workflows.updates != 0 {
		t.Errorf("reprocessing must not touch the instance, got %d updates", f.workflows.updates)
	}
	if len(f.decisions.created) != 0 {
		t.Errorf("reprocessing must not record a decision, got %d", len(f.decisions.created))
	}
}

func TestProcessInvoiceResumesStrandedAnalysis(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)

	// A prior run created the instance, assigned the reviewer and moved to
	// ANALYZING, then failed before committing a decision.
	existing := &entity.WorkflowInstance{
		ID:               "wf-1",
		InvoiceID:        "inv-dec",
		ProviderID:       "prov-1",
		State:            domainwf.StateAnalyzing.String(),
		PreviousState:    domainwf.StateReceived.String(),
		AssignedReviewer: "reviewer@billwise.example",
	}
	f.workflows.createFn = func(ctx context.Context, wf *entity.WorkflowInstance) (*entity.WorkflowInstance, bool, error) {
		return existing, false, nil
	}

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice: %v", err)
	}

	if wf.State != domainwf.StateAutoApproved.String() {
		t.Errorf("expected the resumed run to reach AUTO_APPROVED, got %s", wf.State)
	}
	if len(f.decisions.created) != 1 {
		t.Errorf("expected the resumed run to record a decision, got %d", len(f.decisions.created))
	}
}

func TestProcessInvoiceResumesFromReceived(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)

	existing := &entity.WorkflowInstance{
		ID:         "wf-1",
		InvoiceID:  "inv-dec",
		ProviderID: "prov-1",
		State:      domainwf.StateReceived.String(),
	}
	f.workflows.createFn = func(ctx context.Context, wf *entity.WorkflowInstance) (*entity.WorkflowInstance, bool, error) {
		return existing, false, nil
	}

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice: %v", err)
	}

	if wf.State != domainwf.StateAutoApproved.String() {
		t.Errorf("expected AUTO_APPROVED, got %s", wf.State)
	}
	if wf.AssignedReviewer == "" {
		t.Error("resuming from RECEIVED must assign the reviewer")
	}
}

func TestProcessInvoiceSurvivesBusyRetry(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)
	f.tx.withTransactionFn = replayOnce

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice after a replayed commit: %v", err)
	}

	if wf.State != domainwf.StateAutoApproved.String() {
		t.Errorf("expected AUTO_APPROVED, got %s", wf.State)
	}
	if wf.PreviousState != domainwf.StateAnalyzing.String() {
		t.Errorf("replay must fire from ANALYZING, got previous state %s", wf.PreviousState)
	}
}

func TestProcessInvoiceUnknownInvoice(t *testing.T) {
	f := newFixture()

	_, err := f.engine.ProcessInvoice(context.Background(), "missing")
	if !errors.Is(err, ErrUnknownInvoice) {
		t.Errorf("expected ErrUnknownInvoice, got %v", err)
	}
}

func TestProcessInvoiceInvalidAmount(t *testing.T) {
	f := newFixture()
	inv := monthlyInvoice("inv-bad", time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC), -50)
	f.invoices.getByIDFn = func(ctx context.Context, id string) (*entity.Invoice, error) {
		return inv, nil
	}

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-bad")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if wf.State != domainwf.StateReceived.String() {
		t.Errorf("invalid amount must keep the workflow in RECEIVED, got %s", wf.State)
	}
	if wf.IntakeError == "" {
		t.Error("intake error should be recorded")
	}
}

func TestProcessInvoiceUnresolvedProviderQuarantines(t *testing.T) {
	f := newFixture()
	inv := &entity.Invoice{
		ID:        "inv-orphan",
		IssueDate: time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC),
		Amount:    300,
		Concept:   "suministros",
	}
	f.invoices.getByIDFn = func(ctx context.Context, id string) (*entity.Invoice, error) {
		return inv, nil
	}

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-orphan")
	if !errors.Is(err, ErrUnresolvedProvider) {
		t.Fatalf("expected ErrUnresolvedProvider, got %v", err)
	}
	if wf.State != domainwf.StateQuarantined.String() {
		t.Errorf("expected QUARANTINED, got %s", wf.State)
	}
}

func TestProcessInvoiceWithoutReviewerRoutesToReview(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)
	f.reviewers.reviewerFn = func(ctx context.Context, providerID string) (string, error) {
		return "", nil
	}

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice: %v", err)
	}

	if wf.State != domainwf.StatePendingReview.String() {
		t.Errorf("expected PENDING_REVIEW, got %s", wf.State)
	}
	if !wf.NeedsConfiguration {
		t.Error("NeedsConfiguration should be set when no reviewer exists")
	}
	if len(f.decisions.created) != 0 {
		t.Error("analysis must be skipped when no reviewer is configured")
	}
}

func TestProcessInvoiceDuplicatePOStillApprovesOnHighConfidence(t *testing.T) {
	f := newFixture()
	primeRecurringScenario(f)
	f.invoices.countPORefsFn = func(ctx context.Context, providerID, ref, excludeID string) (int, error) {
		return 1, nil
	}
	inv := monthlyInvoice("inv-dec", time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC), 1500)
	inv.PurchaseOrder = "PO-77"
	f.invoices.getByIDFn = func(ctx context.Context, id string) (*entity.Invoice, error) {
		return inv, nil
	}

	wf, err := f.engine.ProcessInvoice(context.Background(), "inv-dec")
	if err != nil {
		t.Fatalf("ProcessInvoice: %v", err)
	}
	// Confidence drops to 0.90, still above the threshold
	if wf.State != domainwf.StateAutoApproved.String() {
		t.Errorf("expected AUTO_APPROVED, got %s", wf.State)
	}
}

func TestOverrideApproveFromReview(t *testing.T) {
	f := newFixture()
	f.workflows.byID = map[string]*entity.WorkflowInstance{
		"wf-1": {
			ID:        "wf-1",
			InvoiceID: "inv-1",
			State:     domainwf.StatePendingReview.String(),
		},
	}
	f.decisions.latestFn = func(ctx context.Context, invoiceID string) (*entity.DecisionRecord, error) {
		return &entity.DecisionRecord{ID: "dec-1", InvoiceID: invoiceID, Verdict: entity.VerdictManualReview}, nil
	}

	wf, err := f.engine.Override(context.Background(), "wf-1", "ana", "approve", "checked with the provider")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}

	if wf.State != domainwf.StateManuallyApproved.String() {
		t.Errorf("expected MANUALLY_APPROVED, got %s", wf.State)
	}
	if wf.TerminalOutcome != domainwf.StateManuallyApproved.String() {
		t.Errorf("terminal outcome not recorded, got %q", wf.TerminalOutcome)
	}
	if wf.ResolvedAt == nil {
		t.Error("ResolvedAt should be set on terminal resolution")
	}
	if len(f.decisions.overridden) != 1 {
		t.Fatalf("expected one override append, got %d", len(f.decisions.overridden))
	}
	if got := f.decisions.overridden[0]; got.outcome != entity.OutcomeModified || got.actor != "ana" {
		t.Errorf("unexpected override append: %+v", got)
	}
}

func TestOverrideRevertAutoApproval(t *testing.T) {
	f := newFixture()
	f.workflows.byID = map[string]*entity.WorkflowInstance{
		"wf-1": {
			ID:        "wf-1",
			InvoiceID: "inv-1",
			State:     domainwf.StateAutoApproved.String(),
		},
	}
	f.decisions.latestFn = func(ctx context.Context, invoiceID string) (*entity.DecisionRecord, error) {
		return &entity.DecisionRecord{ID: "dec-1", InvoiceID: invoiceID, Verdict: entity.VerdictAutoApprove}, nil
	}

	wf, err := f.engine.Override(context.Background(), "wf-1", "ana", "revert", "amount looks off")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}

	if wf.State != domainwf.StatePendingReview.String() {
		t.Errorf("expected PENDING_REVIEW, got %s", wf.State)
	}
	if got := f.decisions.overridden[0].outcome; got != entity.OutcomeReverted {
		t.Errorf("reverting an auto-approval must record REVERTED, got %s", got)
	}
}

func TestOverrideConfirmsAutoApproval(t *testing.T) {
	f := newFixture()
	// Reverted back to review first, then manually approved: the original
	// auto-approval identity is judged by the latest record's verdict.
	f.workflows.byID = map[string]*entity.WorkflowInstance{
		"wf-1": {
			ID:        "wf-1",
			InvoiceID: "inv-1",
			State:     domainwf.StatePendingReview.String(),
		},
	}
	f.decisions.latestFn = func(ctx context.Context, invoiceID string) (*entity.DecisionRecord, error) {
		return &entity.DecisionRecord{ID: "dec-1", InvoiceID: invoiceID, Verdict: entity.VerdictAutoApprove}, nil
	}

	_, err := f.engine.Override(context.Background(), "wf-1", "ana", "approve", "all good")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if got := f.decisions.overridden[0].outcome; got != entity.OutcomeConfirmed {
		t.Errorf("approving an auto-approval must record CONFIRMED, got %s", got)
	}
}

func TestOverrideWithoutDecisionRecord(t *testing.T) {
	f := newFixture()
	f.workflows.byID = map[string]*entity.WorkflowInstance{
		"wf-1": {
			ID:        "wf-1",
			InvoiceID: "inv-1",
			State:     domainwf.StateQuarantined.String(),
		},
	}

	wf, err := f.engine.Override(context.Background(), "wf-1", "ana", "reject", "cannot identify provider")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}

	if wf.State != domainwf.StateRejected.String() {
		t.Errorf("expected REJECTED, got %s", wf.State)
	}
	if len(f.decisions.created) != 1 {
		t.Fatalf("expected a manual decision record, got %d", len(f.decisions.created))
	}
	rec := f.decisions.created[0]
	if !rec.Overridden || rec.OverriddenBy != "ana" {
		t.Errorf("manual record must carry the override fields: %+v", rec)
	}
	if rec.FinalOutcome != entity.OutcomeModified {
		t.Errorf("expected MODIFIED, got %s", rec.FinalOutcome)
	}
	// A human rejection is not an engine verdict
	if rec.Verdict != entity.VerdictManualReview {
		t.Errorf("expected MANUAL_REVIEW verdict on a manual record, got %s", rec.Verdict)
	}
}

func TestOverrideSurvivesBusyRetry(t *testing.T) {
	f := newFixture()
	f.tx.withTransactionFn = replayOnce
	f.workflows.byID = map[string]*entity.WorkflowInstance{
		"wf-1": {
			ID:        "wf-1",
			InvoiceID: "inv-1",
			State:     domainwf.StatePendingReview.String(),
		},
	}
	f.decisions.latestFn = func(ctx context.Context, invoiceID string) (*entity.DecisionRecord, error) {
		return &entity.DecisionRecord{ID: "dec-1", InvoiceID: invoiceID, Verdict: entity.VerdictManualReview}, nil
	}

	wf, err := f.engine.Override(context.Background(), "wf-1", "ana", "approve", "checked")
	if err != nil {
		t.Fatalf("Override after a replayed commit: %v", err)
	}
	if wf.State != domainwf.StateManuallyApproved.String() {
		t.Errorf("expected MANUALLY_APPROVED, got %s", wf.State)
	}
}

func TestOverrideInvalidTransition(t *testing.T) {
	f := newFixture()
	f.workflows.byID = map[string]*entity.WorkflowInstance{
		"wf-1": {
			ID:        "wf-1",
			InvoiceID: "inv-1",
			State:     domainwf.StateRejected.String(),
		},
	}

	_, err := f.engine.Override(context.Background(), "wf-1", "ana", "approve", "late change of mind")
	if !errors.Is(err, domainwf.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestOverrideUnsupportedVerb(t *testing.T) {
	f := newFixture()
	f.workflows.byID = map[string]*entity.WorkflowInstance{
		"wf-1": {ID: "wf-1", InvoiceID: "inv-1", State: domainwf.StatePendingReview.String()},
	}

	_, err := f.engine.Override(context.Background(), "wf-1", "ana", "escalate", "")
	if !errors.Is(err, ErrUnsupportedOverride) {
		t.Errorf("expected ErrUnsupportedOverride, got %v", err)
	}
}

func TestOverrideUnknownWorkflow(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Override(context.Background(), "missing", "ana", "approve", "")
	if !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("expected ErrUnknownWorkflow, got %v", err)
	}
}
