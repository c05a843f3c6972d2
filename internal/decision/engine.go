// Package decision implements the multi-criteria engine that turns one
// invoice plus its recurrence pattern and provider trust into a verdict with
// a confidence score and a structured, auditable justification.
package decision

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/config"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
)

// Criterion names, stable for audit queries
const (
	CriterionRecurrence    = "recurrence_confidence"
	CriterionTrust         = "provider_trust"
	CriterionAmount        = "amount_reasonable"
	CriterionDateProximity = "date_proximity"
	CriterionPurchaseOrder = "purchase_order"
	CriterionApprovalRatio = "approval_ratio"
)

// minApprovalHistory is the number of prior invoices required before the
// historical-approval criteria can be satisfied.
const minApprovalHistory = 3

// approvalRateFloor is the historical approval rate required by the trust and
// approval-ratio criteria.
const approvalRateFloor = 0.80

// Input carries everything the engine needs for one decision. Pattern and
// Trust may be nil: a missing pattern leaves the recurrence criterion
// unsatisfied, a missing trust score is treated as neutral.
type Input struct {
	Invoice       *entity.Invoice
	Pattern       *entity.Pattern
	Trust         *entity.TrustScore
	History       entity.ProviderHistory
	ReferenceDate *time.Time // issue date of the latest prior-period invoice
	DuplicatePO   bool       // the invoice's PO reference duplicates a prior invoice's
}

// Decision is the engine's output
type Decision struct {
	Verdict       entity.Verdict
	Confidence    float64
	Criteria      []entity.Criterion
	Justification string
	Blocked       bool
	BlockReason   string
}

// Engine evaluates the weighted decision criteria
type Engine struct {
	cfg    config.DecisionConfig
	logger *zap.Logger
}

// NewEngine creates a decision engine. The configuration must already be
// validated; weights not summing to 1.0 are a startup failure upstream.
func NewEngine(cfg config.DecisionConfig, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Decide evaluates all criteria for one invoice and derives the verdict.
// Blocking overrides (blocked provider, amount over the hard ceiling) force
// MANUAL_REVIEW before the confidence thresholds are consulted; the engine
// never auto-rejects on confidence alone.
func (e *Engine) Decide(in Input) Decision {
	criteria := []entity.Criterion{
		e.recurrenceCriterion(in),
		e.trustCriterion(in),
		e.amountCriterion(in),
		e.dateProximityCriterion(in),
		e.purchaseOrderCriterion(in),
		e.approvalRatioCriterion(in),
	}

	var satisfied, evaluated float64
	for _, c := range criteria {
		evaluated += c.Weight
		if c.Satisfied {
			satisfied += c.Weight
		}
	}
	confidence := 0.0
	if evaluated > 0 {
		confidence = satisfied / evaluated
	}

	d := Decision{
		Confidence: confidence,
		Criteria:   criteria,
	}

	if reason, blocked := e.blockingReason(in); blocked {
		d.Verdict = entity.VerdictManualReview
		d.Blocked = true
		d.BlockReason = reason
		d.Justification = fmt.Sprintf("confidence %.2f, forced to manual review: %s", confidence, reason)
	} else {
		switch {
		case confidence >= e.cfg.AutoApproveConfidence:
			d.Verdict = entity.VerdictAutoApprove
			d.Justification = fmt.Sprintf("confidence %.2f meets auto-approval threshold %.2f",
				confidence, e.cfg.AutoApproveConfidence)
		case confidence >= e.cfg.ManualReviewFloor:
			d.Verdict = entity.VerdictManualReview
			d.Justification = fmt.Sprintf("confidence %.2f, unmet criteria: %s",
				confidence, unmetSummary(criteria))
		default:
			d.Verdict = entity.VerdictManualReview
			d.Justification = fmt.Sprintf("low confidence %.2f (below %.2f), unmet criteria: %s",
				confidence, e.cfg.ManualReviewFloor, unmetSummary(criteria))
		}
	}

	e.logger.Info("Decision evaluated",
		zap.String("invoice_id", in.Invoice.ID),
		zap.String("provider_id", in.Invoice.ProviderID),
		zap.String("verdict", d.Verdict.String()),
		zap.Float64("confidence", d.Confidence),
		zap.Bool("blocked", d.Blocked),
	)

	return d
}

// blockingReason checks the overrides that take precedence over confidence
func (e *Engine) blockingReason(in Input) (string, bool) {
	if in.Trust != nil && in.Trust.Blocked {
		return "provider blocked", true
	}
	if in.Trust != nil && in.Trust.ForceManualReview {
		return "provider flagged for manual review", true
	}
	if in.Invoice.Amount > e.cfg.MaxAutoApproveAmount {
		return fmt.Sprintf("amount %.2f exceeds automatic approval ceiling %.2f",
			in.Invoice.Amount, e.cfg.MaxAutoApproveAmount), true
	}
	return "", false
}

// recurrenceCriterion (0.35): a pattern exists and is eligible for automation
func (e *Engine) recurrenceCriterion(in Input) entity.Criterion {
	c := entity.Criterion{
		Name:     CriterionRecurrence,
		Weight:   e.cfg.Weights.Recurrence,
		Required: "eligible recurrence pattern",
	}
	if in.Pattern == nil {
		c.Observed = "no pattern"
		return c
	}
	c.Observed = fmt.Sprintf("%s pattern, cv %.1f%%, eligible=%t",
		in.Pattern.Class, in.Pattern.CV, in.Pattern.AutoEligible)
	c.Satisfied = in.Pattern.IsValid() && in.Pattern.AutoEligible
	return c
}

// trustCriterion (0.20): provider not blocked, and either allow-listed or
// with enough approved history
func (e *Engine) trustCriterion(in Input) entity.Criterion {
	c := entity.Criterion{
		Name:   CriterionTrust,
		Weight: e.cfg.Weights.Trust,
		Required: fmt.Sprintf("not blocked, allow-listed or >=%d invoices with >=%.0f%% approval",
			minApprovalHistory, approvalRateFloor*100),
	}

	blocked := in.Trust != nil && in.Trust.Blocked
	allowListed := e.cfg.IsTrusted(in.Invoice.ProviderID)
	rate := in.History.ApprovalRate()
	c.Observed = fmt.Sprintf("blocked=%t, allow-listed=%t, %d invoices at %.0f%% approval",
		blocked, allowListed, in.History.TotalInvoices, rate*100)

	if blocked {
		return c
	}
	c.Satisfied = allowListed ||
		(in.History.TotalInvoices >= minApprovalHistory && rate >= approvalRateFloor)
	return c
}

// amountCriterion (0.15): below the hard ceiling and within the pattern's
// deviation-alert threshold (ceiling check only when no pattern exists)
func (e *Engine) amountCriterion(in Input) entity.Criterion {
	c := entity.Criterion{
		Name:   CriterionAmount,
		Weight: e.cfg.Weights.Amount,
	}

	if in.Invoice.Amount >= e.cfg.MaxAutoApproveAmount {
		c.Observed = fmt.Sprintf("amount %.2f", in.Invoice.Amount)
		c.Required = fmt.Sprintf("below ceiling %.2f", e.cfg.MaxAutoApproveAmount)
		return c
	}

	if in.Pattern == nil {
		c.Observed = fmt.Sprintf("amount %.2f, no pattern", in.Invoice.Amount)
		c.Required = fmt.Sprintf("below ceiling %.2f", e.cfg.MaxAutoApproveAmount)
		c.Satisfied = true
		return c
	}

	threshold := in.Pattern.AlertThreshold
	if threshold <= 0 {
		threshold = e.cfg.AmountCeilingVariationPct
	}
	deviation := in.Pattern.DeviationPct(in.Invoice.Amount)
	c.Observed = fmt.Sprintf("amount deviates %.1f%% from pattern mean %.2f", deviation, in.Pattern.MeanAmount)
	c.Required = fmt.Sprintf("deviation within %.1f%%", threshold)
	c.Satisfied = deviation <= threshold
	return c
}

// dateProximityCriterion (0.15): the invoice date is near the date implied by
// the pattern's periodicity. Unsatisfied, not skipped, when no consistent
// periodicity exists.
func (e *Engine) dateProximityCriterion(in Input) entity.Criterion {
	c := entity.Criterion{
		Name:     CriterionDateProximity,
		Weight:   e.cfg.Weights.DateProximity,
		Required: fmt.Sprintf("within %d days of the expected date", e.cfg.DateProximityDays),
	}

	if in.Pattern == nil || !in.Pattern.Periodicity.HasInterval() || in.ReferenceDate == nil {
		c.Observed = "no consistent periodicity"
		return c
	}

	expected := in.ReferenceDate.AddDate(0, 0, in.Pattern.Periodicity.IntervalDays())
	gap := in.Invoice.IssueDate.Sub(expected).Hours() / 24
	if gap < 0 {
		gap = -gap
	}
	c.Observed = fmt.Sprintf("%.0f days from expected %s", gap, expected.Format("2006-01-02"))
	c.Satisfied = gap <= float64(e.cfg.DateProximityDays)
	return c
}

// purchaseOrderCriterion (0.10): a non-duplicate PO reference is present, or
// the provider's history shows POs are the exception rather than the rule
func (e *Engine) purchaseOrderCriterion(in Input) entity.Criterion {
	c := entity.Criterion{
		Name:     CriterionPurchaseOrder,
		Weight:   e.cfg.Weights.PurchaseOrder,
		Required: "unique PO reference, or POs unusual for this provider",
	}

	poRate := in.History.PurchaseOrderRate()
	if in.Invoice.PurchaseOrder != "" {
		if in.DuplicatePO {
			c.Observed = fmt.Sprintf("PO %s duplicates a prior invoice", in.Invoice.PurchaseOrder)
			return c
		}
		c.Observed = fmt.Sprintf("PO %s present and unique", in.Invoice.PurchaseOrder)
		c.Satisfied = true
		return c
	}

	c.Observed = fmt.Sprintf("no PO, provider PO usage %.0f%%", poRate*100)
	c.Satisfied = poRate < 0.5
	return c
}

// approvalRatioCriterion (0.05): enough history with a high approval rate
func (e *Engine) approvalRatioCriterion(in Input) entity.Criterion {
	rate := in.History.ApprovalRate()
	return entity.Criterion{
		Name:   CriterionApprovalRatio,
		Weight: e.cfg.Weights.ApprovalRatio,
		Observed: fmt.Sprintf("%d invoices, %.0f%% approved",
			in.History.TotalInvoices, rate*100),
		Required: fmt.Sprintf(">=%d invoices with >=%.0f%% approved",
			minApprovalHistory, approvalRateFloor*100),
		Satisfied: in.History.TotalInvoices >= minApprovalHistory && rate >= approvalRateFloor,
	}
}

func unmetSummary(criteria []entity.Criterion) string {
	var parts []string
	for _, c := range criteria {
		if !c.Satisfied {
			parts = append(parts, fmt.Sprintf("%s (%s, required %s)", c.Name, c.Observed, c.Required))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "; ")
}
