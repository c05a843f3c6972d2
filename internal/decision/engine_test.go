package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/config"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
)

func testConfig() config.DecisionConfig {
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

func eligiblePattern() *entity.Pattern {
	return &entity.Pattern{
		ProviderID:     "prov-1",
		Class:          entity.PatternFixed,
		MeanAmount:     1500,
		CV:             1.2,
		PaymentCount:   12,
		MonthCount:     12,
		Periodicity:    entity.PeriodicityMonthly,
		AutoEligible:   true,
		AlertThreshold: 15,
	}
}

func goodHistory() entity.ProviderHistory {
	return entity.ProviderHistory{
		TotalInvoices:         10,
		Approved:              9,
		AutoApproved:          5,
		AutoApprovedConfirmed: 5,
		WithPurchaseOrder:     8,
	}
}

// strongInput satisfies all six criteria
func strongInput() Input {
	ref := time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC)
	return Input{
		Invoice: &entity.Invoice{
			ID:            "inv-1",
			ProviderID:    "prov-1",
			IssueDate:     ref.AddDate(0, 0, 30),
			Amount:        1520,
			Concept:       "alquiler local",
			PurchaseOrder: "PO-2025-104",
		},
		Pattern:       eligiblePattern(),
		Trust:         &entity.TrustScore{ProviderID: "prov-1", Score: 0.9, Tier: entity.TierHigh},
		History:       goodHistory(),
		ReferenceDate: &ref,
	}
}

func TestDecideAutoApprove(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	d := e.Decide(strongInput())

	assert.Equal(t, entity.VerdictAutoApprove, d.Verdict)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
	assert.False(t, d.Blocked)
	require.Len(t, d.Criteria, 6)
	for _, c := range d.Criteria {
		assert.True(t, c.Satisfied, "criterion %s", c.Name)
		assert.NotEmpty(t, c.Observed, "criterion %s", c.Name)
	}
}

func TestDecideAlwaysRecordsAllCriteria(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	d := e.Decide(Input{
		Invoice: &entity.Invoice{ID: "inv-1", ProviderID: "prov-9", Amount: 500,
			IssueDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
	})

	require.Len(t, d.Criteria, 6)
	names := make(map[string]bool, 6)
	for _, c := range d.Criteria {
		names[c.Name] = true
	}
	for _, want := range []string{
		CriterionRecurrence, CriterionTrust, CriterionAmount,
		CriterionDateProximity, CriterionPurchaseOrder, CriterionApprovalRatio,
	} {
		assert.True(t, names[want], "missing criterion %s", want)
	}
	assert.GreaterOrEqual(t, d.Confidence, 0.0)
	assert.LessOrEqual(t, d.Confidence, 1.0)
}

func TestDecideBlockedProviderForcesManualReview(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	in := strongInput()
	in.Trust.Blocked = true
	in.Trust.BlockReason = "fraud investigation"

	d := e.Decide(in)

	assert.Equal(t, entity.VerdictManualReview, d.Verdict)
	assert.True(t, d.Blocked)
	assert.Equal(t, "provider blocked", d.BlockReason)
	// Confidence drops only by the trust criterion; the block, not the
	// threshold, decides the verdict.
	assert.InDelta(t, 0.80, d.Confidence, 1e-9)
}

func TestDecideForceManualReviewFlag(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	in := strongInput()
	in.Trust.ForceManualReview = true

	d := e.Decide(in)

	assert.Equal(t, entity.VerdictManualReview, d.Verdict)
	assert.True(t, d.Blocked)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
}

func TestDecideAmountOverCeilingBlocks(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	in := strongInput()
	in.Invoice.Amount = 25000

	d := e.Decide(in)

	assert.Equal(t, entity.VerdictManualReview, d.Verdict)
	assert.True(t, d.Blocked)
	assert.Contains(t, d.BlockReason, "exceeds automatic approval ceiling")

	for _, c := range d.Criteria {
		if c.Name == CriterionAmount {
			assert.False(t, c.Satisfied)
		}
	}
}

func TestDecideMidConfidenceGoesToReview(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	// No pattern: recurrence (0.35) and date proximity (0.15) unsatisfied,
	// everything else holds. Confidence lands at 0.50.
	in := strongInput()
	in.Pattern = nil
	in.ReferenceDate = nil

	d := e.Decide(in)

	assert.Equal(t, entity.VerdictManualReview, d.Verdict)
	assert.InDelta(t, 0.50, d.Confidence, 1e-9)
	assert.False(t, d.Blocked)
	assert.Contains(t, d.Justification, CriterionRecurrence)
}

func TestDecideLowConfidenceNeverAutoRejects(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	// Unknown provider, no history, no pattern: only the ceiling check and
	// the absent-PO criterion hold, confidence 0.25.
	d := e.Decide(Input{
		Invoice: &entity.Invoice{ID: "inv-1", ProviderID: "prov-new", Amount: 300,
			IssueDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
	})

	assert.Equal(t, entity.VerdictManualReview, d.Verdict)
	assert.NotEqual(t, entity.VerdictAutoReject, d.Verdict)
	assert.InDelta(t, 0.25, d.Confidence, 1e-9)
	assert.Contains(t, d.Justification, "low confidence")
}

func TestDecideAllowListedProviderSatisfiesTrust(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedProviders = []string{"prov-new"}
	e := NewEngine(cfg, zap.NewNop())

	d := e.Decide(Input{
		Invoice: &entity.Invoice{ID: "inv-1", ProviderID: "prov-new", Amount: 300,
			IssueDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
	})

	for _, c := range d.Criteria {
		if c.Name == CriterionTrust {
			assert.True(t, c.Satisfied)
		}
	}
}

func TestDecideAmountDeviationAgainstPattern(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	// 1500 mean, 15% alert threshold: 1800 deviates 20%
	in := strongInput()
	in.Invoice.Amount = 1800

	d := e.Decide(in)

	for _, c := range d.Criteria {
		if c.Name == CriterionAmount {
			assert.False(t, c.Satisfied)
			assert.Contains(t, c.Observed, "deviates")
		}
	}
}

func TestDecideDateProximity(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	// Expected 30 days after the reference; 12 days late exceeds the 7-day window
	in := strongInput()
	ref := *in.ReferenceDate
	in.Invoice.IssueDate = ref.AddDate(0, 0, 42)

	d := e.Decide(in)

	for _, c := range d.Criteria {
		if c.Name == CriterionDateProximity {
			assert.False(t, c.Satisfied)
		}
	}
}

func TestDecideDuplicatePurchaseOrder(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	in := strongInput()
	in.DuplicatePO = true

	d := e.Decide(in)

	for _, c := range d.Criteria {
		if c.Name == CriterionPurchaseOrder {
			assert.False(t, c.Satisfied)
			assert.Contains(t, c.Observed, "duplicates")
		}
	}
	// 0.90 still clears the threshold; the duplicate alone does not block
	assert.InDelta(t, 0.90, d.Confidence, 1e-9)
	assert.Equal(t, entity.VerdictAutoApprove, d.Verdict)
}

func TestDecideMissingPOWhenProviderRarelyUsesThem(t *testing.T) {
	e := NewEngine(testConfig(), zap.NewNop())

	in := strongInput()
	in.Invoice.PurchaseOrder = ""
	in.History.WithPurchaseOrder = 2 // 20% of 10

	d := e.Decide(in)

	for _, c := range d.Criteria {
		if c.Name == CriterionPurchaseOrder {
			assert.True(t, c.Satisfied)
		}
	}
}
