package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/analyzer"
	"github.com/billwise/invoice-autopilot/internal/application/port"
)

// ItemError records one failed item of a batch operation. Per-item failures
// never abort the batch; callers get counts plus this list so "0 processed"
// and "all failed" stay distinguishable.
type ItemError struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// AnalyzeRequest selects the providers and history window to analyze
type AnalyzeRequest struct {
	ProviderIDs    []string `json:"provider_ids"`
	WindowMonths   int      `json:"window_months"`
	ForceRecompute bool     `json:"force_recompute"`
}

// AnalyzeResult summarizes a batch pattern-analysis run
type AnalyzeResult struct {
	PatternsCreated int         `json:"patterns_created"`
	PatternsUpdated int         `json:"patterns_updated"`
	Errors          []ItemError `json:"errors"`
}

// AnalyzeService runs pattern analysis across providers
type AnalyzeService interface {
	AnalyzePatterns(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
}

type analyzeServiceImpl struct {
	analyzer *analyzer.Analyzer
	invoices port.InvoiceRepository
	logger   *zap.Logger
}

// NewAnalyzeService creates an AnalyzeService
func NewAnalyzeService(a *analyzer.Analyzer, invoices port.InvoiceRepository, logger *zap.Logger) AnalyzeService {
	return &analyzeServiceImpl{analyzer: a, invoices: invoices, logger: logger}
}

// AnalyzePatterns analyzes each requested provider, accumulating per-provider
// errors instead of aborting the batch. An empty provider list means every
// provider with invoice history.
func (s *analyzeServiceImpl) AnalyzePatterns(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	providers := req.ProviderIDs
	if len(providers) == 0 {
		all, err := s.invoices.Providers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list providers: %w", err)
		}
		providers = all
	}

	result := &AnalyzeResult{Errors: []ItemError{}}
	for _, providerID := range providers {
		res, err := s.analyzer.Analyze(ctx, providerID, req.WindowMonths, req.ForceRecompute)
		if err != nil {
			s.logger.Error("Provider analysis failed",
				zap.String("provider_id", providerID),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, ItemError{Item: providerID, Error: err.Error()})
			continue
		}
		result.PatternsCreated += res.Created
		result.PatternsUpdated += res.Updated
	}

	s.logger.Info("Batch pattern analysis finished",
		zap.Int("providers", len(providers)),
		zap.Int("patterns_created", result.PatternsCreated),
		zap.Int("patterns_updated", result.PatternsUpdated),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}
