// Package analyzer turns a provider's payment history into recurrence
// patterns: one Pattern row per (provider, normalized concept) pair.
package analyzer

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/config"
	"github.com/billwise/invoice-autopilot/internal/domain/entity"
	"github.com/billwise/invoice-autopilot/internal/normalizer"
)

// Result summarizes one provider's analysis pass
type Result struct {
	ProviderID string
	Created    int
	Updated    int
	Unchanged  int
	Skipped    int // concept groups with insufficient history
	Patterns   []*entity.Pattern
}

// Analyzer computes and persists recurrence patterns
type Analyzer struct {
	invoices port.InvoiceRepository
	patterns port.PatternRepository
	decision config.DecisionConfig
	analysis config.AnalysisConfig
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a pattern analyzer
func New(
	invoices port.InvoiceRepository,
	patterns port.PatternRepository,
	decision config.DecisionConfig,
	analysis config.AnalysisConfig,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		invoices: invoices,
		patterns: patterns,
		decision: decision,
		analysis: analysis,
		logger:   logger,
		now:      time.Now,
	}
}

type conceptGroup struct {
	concept string
	hash    string
	amounts []float64
	dates   []time.Time
}

// Analyze recomputes the provider's patterns over the given history window.
// Re-running on identical history leaves every row untouched: the upsert is
// keyed by (provider id, concept hash) and unchanged statistics are skipped
// unless force is set.
func (a *Analyzer) Analyze(ctx context.Context, providerID string, windowMonths int, force bool) (*Result, error) {
	if windowMonths <= 0 {
		windowMonths = a.analysis.DefaultWindowMonths
	}
	since := a.now().AddDate(0, -windowMonths, 0)

	history, err := a.invoices.ListByProvider(ctx, providerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice history for %s: %w", providerID, err)
	}

	result := &Result{ProviderID: providerID}
	for _, group := range a.groupByConcept(history) {
		if len(group.amounts) < 2 || DistinctMonths(group.dates) < 2 {
			// Insufficient evidence: no pattern emitted, any existing row stays
			result.Skipped++
			continue
		}

		fresh := a.buildPattern(providerID, group)

		existing, err := a.patterns.GetByKey(ctx, providerID, group.hash)
		if err != nil {
			return nil, fmt.Errorf("failed to read pattern %s/%s: %w", providerID, group.hash, err)
		}
		if existing != nil && !force && !shouldRewrite(existing, fresh) {
			result.Unchanged++
			result.Patterns = append(result.Patterns, existing)
			continue
		}
		if existing != nil && a.analysis.KeepExistingOnTie {
			// Keep the oldest row's identity; only its statistics move
			fresh.ID = existing.ID
		}

		created, err := a.patterns.Upsert(ctx, fresh)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert pattern %s/%s: %w", providerID, group.hash, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		result.Patterns = append(result.Patterns, fresh)
	}

	a.logger.Info("Pattern analysis completed",
		zap.String("provider_id", providerID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

// groupByConcept buckets invoices by normalized concept hash. Invoices with
// invalid amounts are excluded so the statistics see clean numeric input.
func (a *Analyzer) groupByConcept(history []*entity.Invoice) map[string]*conceptGroup {
	groups := make(map[string]*conceptGroup)
	for _, inv := range history {
		if !inv.HasValidAmount() {
			a.logger.Warn("Skipping invoice with invalid amount",
				zap.String("invoice_id", inv.ID),
				zap.Float64("amount", inv.Amount),
			)
			continue
		}

		concept, hash := normalizer.Normalize(inv.Concept)
		g, ok := groups[hash]
		if !ok {
			g = &conceptGroup{concept: concept, hash: hash}
			groups[hash] = g
		}
		g.amounts = append(g.amounts, inv.Amount)
		g.dates = append(g.dates, inv.IssueDate)
	}
	return groups
}

func (a *Analyzer) buildPattern(providerID string, g *conceptGroup) *entity.Pattern {
	mean := Mean(g.amounts)
	stdev := StdDev(g.amounts)
	cv := CV(g.amounts)
	class := a.classify(cv)
	months := DistinctMonths(g.dates)

	min, max := g.amounts[0], g.amounts[0]
	for _, v := range g.amounts[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	p := &entity.Pattern{
		ProviderID:     providerID,
		Concept:        g.concept,
		ConceptHash:    g.hash,
		Class:          class,
		PaymentCount:   len(g.amounts),
		MonthCount:     months,
		MeanAmount:     mean,
		MinAmount:      min,
		MaxAmount:      max,
		StdDev:         stdev,
		CV:             cv,
		Periodicity:    DetectPeriodicity(g.dates),
		AutoEligible:   a.eligible(class, len(g.amounts), months, cv),
		AlertThreshold: alertThreshold(class, cv),
		AnalyzedAt:     a.now(),
	}

	if class == entity.PatternVariable {
		p.ExpectedMin = math.Max(0, mean-2*stdev)
		p.ExpectedMax = mean + 2*stdev
	}

	return p
}

// classify maps a CV percentage to a pattern class. Boundaries are exclusive
// upward: CV exactly at a threshold falls in the higher-dispersion class.
func (a *Analyzer) classify(cv float64) entity.PatternClass {
	switch {
	case cv < a.decision.CVThresholdFixed:
		return entity.PatternFixed
	case cv < a.decision.CVThresholdVariable:
		return entity.PatternVariable
	default:
		return entity.PatternExceptional
	}
}

func (a *Analyzer) eligible(class entity.PatternClass, payments, months int, cv float64) bool {
	switch class {
	case entity.PatternFixed:
		return payments >= a.decision.MinPaymentsFixed && months >= 2
	case entity.PatternVariable:
		return payments >= a.decision.MinPaymentsVariable && months >= 3 && cv < a.analysis.EligibleCVVariable
	default:
		return false
	}
}

func alertThreshold(class entity.PatternClass, cv float64) float64 {
	switch class {
	case entity.PatternFixed:
		return 15
	case entity.PatternVariable:
		return math.Min(30, cv+10)
	default:
		return 50
	}
}

// shouldRewrite reports whether a recomputed pattern differs enough from the
// stored row to justify overwriting it: classification or eligibility changed,
// the payment count grew, or the mean shifted by more than 10% relative.
func shouldRewrite(existing, fresh *entity.Pattern) bool {
	if existing.Class != fresh.Class || existing.AutoEligible != fresh.AutoEligible {
		return true
	}
	if fresh.PaymentCount > existing.PaymentCount {
		return true
	}
	if existing.MeanAmount == 0 {
		return fresh.MeanAmount != 0
	}
	shift := math.Abs(fresh.MeanAmount-existing.MeanAmount) / existing.MeanAmount
	return shift > 0.10
}
