package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/application/service"
	appworkflow "github.com/billwise/invoice-autopilot/internal/application/workflow"
	domainwf "github.com/billwise/invoice-autopilot/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	invoiceService  service.InvoiceService
	analyzeService  service.AnalyzeService
	decisionService service.DecisionService
	trustService    service.TrustService
	logger          *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	invoiceService service.InvoiceService,
	analyzeService service.AnalyzeService,
	decisionService service.DecisionService,
	trustService service.TrustService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		invoiceService:  invoiceService,
		analyzeService:  analyzeService,
		decisionService: decisionService,
		trustService:    trustService,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OverrideRequest carries a manual decision on a workflow
type OverrideRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Verb   string `json:"verb" binding:"required"`
	Reason string `json:"reason"`
}

// BlockRequest carries a manual provider block
type BlockRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// UnblockRequest carries a manual provider unblock
type UnblockRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// IntakeInvoice handles POST /api/v1/invoices
func (h *Handlers) IntakeInvoice(c *gin.Context) {
	var req service.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	inv, err := h.invoiceService.Intake(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Invoice intake failed", zap.String("invoice_id", req.ID), zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: inv})
}

// DecideInvoice handles POST /api/v1/invoices/:id/decide
func (h *Handlers) DecideInvoice(c *gin.Context) {
	invoiceID := c.Param("id")

	result, err := h.decisionService.Decide(c.Request.Context(), invoiceID)
	if err != nil {
		h.logger.Error("Decision failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		switch {
		case errors.Is(err, appworkflow.ErrUnknownInvoice):
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "invoice not found"})
		case errors.Is(err, appworkflow.ErrInvalidAmount),
			errors.Is(err, appworkflow.ErrUnresolvedProvider):
			c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "decision failed"})
		}
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// AnalyzePatterns handles POST /api/v1/patterns/analyze
func (h *Handlers) AnalyzePatterns(c *gin.Context) {
	var req service.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.analyzeService.AnalyzePatterns(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Pattern analysis failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "pattern analysis failed"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	wf, err := h.decisionService.GetWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		if errors.Is(err, appworkflow.ErrUnknownWorkflow) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "workflow not found"})
			return
		}
		h.logger.Error("Failed to get workflow", zap.String("workflow_id", workflowID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to retrieve workflow"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// OverrideWorkflow handles POST /api/v1/workflows/:id/override
func (h *Handlers) OverrideWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	wf, err := h.decisionService.Override(c.Request.Context(), workflowID, req.Actor, req.Verb, req.Reason)
	if err != nil {
		h.logger.Error("Override failed",
			zap.String("workflow_id", workflowID),
			zap.String("verb", req.Verb),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, appworkflow.ErrUnknownWorkflow):
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "workflow not found"})
		case errors.Is(err, appworkflow.ErrUnsupportedOverride):
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		case errors.Is(err, domainwf.ErrInvalidTransition),
			errors.Is(err, domainwf.ErrGuardFailed):
			c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "override failed"})
		}
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// RecomputeTrust handles POST /api/v1/providers/:id/trust/recompute
func (h *Handlers) RecomputeTrust(c *gin.Context) {
	providerID := c.Param("id")

	ts, err := h.trustService.Recompute(c.Request.Context(), providerID)
	if err != nil {
		h.logger.Error("Trust recompute failed", zap.String("provider_id", providerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "trust recompute failed"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: ts})
}

// BlockProvider handles POST /api/v1/providers/:id/block
func (h *Handlers) BlockProvider(c *gin.Context) {
	providerID := c.Param("id")

	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	ts, err := h.trustService.Block(c.Request.Context(), providerID, req.Actor, req.Reason)
	if err != nil {
		h.logger.Error("Provider block failed", zap.String("provider_id", providerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "provider block failed"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: ts})
}

// UnblockProvider handles POST /api/v1/providers/:id/unblock
func (h *Handlers) UnblockProvider(c *gin.Context) {
	providerID := c.Param("id")

	var req UnblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	ts, err := h.trustService.Unblock(c.Request.Context(), providerID, req.Actor)
	if err != nil {
		h.logger.Error("Provider unblock failed", zap.String("provider_id", providerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "provider unblock failed"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: ts})
}
