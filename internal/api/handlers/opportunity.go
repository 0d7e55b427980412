package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/services"
	"github.com/nbrons/perp-prophet/internal/utils"
)

// OpportunityHandler serves the strategy comparison endpoints.
type OpportunityHandler struct {
	opportunities *services.OpportunityService
	advisory      *services.AdvisoryService
	analysis      *services.FundingAnalysisService
}

// AdvisoryResponse is the rendered plain text advisory plus the data behind it.
type AdvisoryResponse struct {
	Text     string                    `json:"text"`
	Report   *models.OpportunityReport `json:"report"`
	Analysis *models.FundingAnalysis   `json:"analysis,omitempty"`
}

// ExplanationResponse describes one strategy.
type ExplanationResponse struct {
	Strategy models.StrategyKind `json:"strategy"`
	Title    string              `json:"title"`
	Text     string              `json:"text"`
}

// NewOpportunityHandler creates the handler. analysis may be nil.
func NewOpportunityHandler(
	opportunities *services.OpportunityService,
	advisory *services.AdvisoryService,
	analysis *services.FundingAnalysisService,
) *OpportunityHandler {
	return &OpportunityHandler{
		opportunities: opportunities,
		advisory:      advisory,
		analysis:      analysis,
	}
}

// GetOpportunities returns the comparison under the configured parameters.
func (h *OpportunityHandler) GetOpportunities(c *gin.Context) {
	report, err := h.opportunities.Opportunities(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Evaluate returns the comparison with the parameters given in the body.
func (h *OpportunityHandler) Evaluate(c *gin.Context) {
	var overrides services.EvaluationOverrides
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&overrides); err != nil {
			respondError(c, utils.NewValidationErrorf("body", "malformed JSON: %v", err))
			return
		}
	}

	report, err := h.opportunities.Evaluate(c.Request.Context(), overrides)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// PositionSizing evaluates ?total_position_size=&leverage= against live rates.
func (h *OpportunityHandler) PositionSizing(c *gin.Context) {
	size, err := decimalQuery(c, "total_position_size", "")
	if err != nil {
		respondError(c, err)
		return
	}
	leverage, err := decimalQuery(c, "leverage", "1")
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.opportunities.PositionSizing(c.Request.Context(), size, leverage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetAdvisory renders the advisory text. Funding history is included when
// the rate store is available.
func (h *OpportunityHandler) GetAdvisory(c *gin.Context) {
	ctx := c.Request.Context()
	report, err := h.opportunities.Opportunities(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	var analysis *models.FundingAnalysis
	if h.analysis != nil {
		analysis, err = h.analysis.Analyze(ctx, report.Snapshot)
		if err != nil {
			// advisory still renders without history
			_ = c.Error(err)
			analysis = nil
		}
	}

	text, err := h.advisory.Render(report, analysis)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AdvisoryResponse{Text: text, Report: report, Analysis: analysis})
}

// ExplainStrategy describes the strategy named in the path.
func (h *OpportunityHandler) ExplainStrategy(c *gin.Context) {
	kind := models.StrategyKind(c.Param("strategy"))
	text, err := h.advisory.Explain(kind, h.opportunities.Parameters())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExplanationResponse{
		Strategy: kind,
		Title:    services.StrategyTitle(kind),
		Text:     text,
	})
}

func decimalQuery(c *gin.Context, name, fallback string) (decimal.Decimal, error) {
	raw := c.DefaultQuery(name, fallback)
	if raw == "" {
		return decimal.Zero, utils.NewValidationError(name, "is required")
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, utils.NewValidationErrorf(name, "not a number: %q", raw)
	}
	return value, nil
}
