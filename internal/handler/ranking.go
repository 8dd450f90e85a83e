package handler

import (
	"net/http"
	"strconv"
	"time"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/ranking"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxScanSymbols = 50

type scanRequest struct {
	Symbols []string `json:"symbols" binding:"required,min=1"`
}

type rankingResponse struct {
	StartedAt   time.Time            `json:"started_at"`
	Threshold   float64              `json:"threshold"`
	Frenzy      bool                 `json:"frenzy"`
	FrenzyCount int                  `json:"frenzy_count"`
	Target      *domain.ScoreResult  `json:"target"`
	AlertID     string               `json:"alert_id,omitempty"`
	Ranked      []domain.ScoreResult `json:"ranked"`
	Stats       domain.ScanStats     `json:"stats"`
}

func toRankingResponse(report domain.CycleReport, limit int) rankingResponse {
	return rankingResponse{
		StartedAt:   report.StartedAt,
		Threshold:   report.Threshold,
		Frenzy:      report.Frenzy,
		FrenzyCount: report.FrenzyCount,
		Target:      report.Target,
		AlertID:     report.AlertID,
		Ranked:      ranking.Top(report.Ranked, limit),
		Stats:       report.Stats,
	}
}

// GetRanking returns the latest cycle report, trimmed to ?limit= entries.
func (h *Handler) GetRanking(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-ranking")
	defer span.End()

	limit := h.sniper.TopCount()
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	report := h.sniper.Latest()
	if report == nil && h.store != nil {
		stored, err := h.store.Latest(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to read stored ranking")
		}
		report = stored
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ranking available yet"})
		return
	}
	c.JSON(http.StatusOK, toRankingResponse(*report, limit))
}

// Scan scores the requested symbols on demand. No alert is recorded.
func (h *Handler) Scan(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.scan")
	defer span.End()

	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols must be a non-empty list"})
		return
	}
	if len(req.Symbols) > maxScanSymbols {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many symbols"})
		return
	}

	report := h.sniper.AnalyzeOnDemand(ctx, req.Symbols)
	c.JSON(http.StatusOK, toRankingResponse(report, 0))
}
