package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/services"
	"github.com/nbrons/perp-prophet/internal/utils"
)

// FundingHandler serves the stored funding history.
type FundingHandler struct {
	opportunities *services.OpportunityService
	analysis      *services.FundingAnalysisService
}

// HistoryResponse lists the records of one window, oldest first.
type HistoryResponse struct {
	Asset   string              `json:"asset"`
	Window  string              `json:"window"`
	Records []models.RateRecord `json:"records"`
	Count   int                 `json:"count"`
}

func NewFundingHandler(opportunities *services.OpportunityService, analysis *services.FundingAnalysisService) *FundingHandler {
	return &FundingHandler{
		opportunities: opportunities,
		analysis:      analysis,
	}
}

// GetHistory returns the records within ?window= (24h, 7d or 30d).
func (h *FundingHandler) GetHistory(c *gin.Context) {
	window, ok := services.ParseWindow(c.Query("window"))
	if !ok {
		respondError(c, utils.NewValidationErrorf("window", "must be one of 24h, 7d, 30d, got %q", c.Query("window")))
		return
	}

	records, err := h.analysis.History(c.Request.Context(), window.Duration)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []models.RateRecord{}
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Asset:   h.opportunities.Parameters().BaseAsset,
		Window:  window.Name,
		Records: records,
		Count:   len(records),
	})
}

// GetAnalysis returns window statistics, trend and break-even for the current snapshot.
func (h *FundingHandler) GetAnalysis(c *gin.Context) {
	ctx := c.Request.Context()
	snapshot, err := h.opportunities.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	analysis, err := h.analysis.Analyze(ctx, snapshot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}
