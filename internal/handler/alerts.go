package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/tracker"

	"github.com/gin-gonic/gin"
)

const defaultAlertDays = 7

type outcomeRequest struct {
	Status       string   `json:"status" binding:"required"`
	ProfitLoss   *float64 `json:"profit_loss"`
	MaxFavorable *float64 `json:"max_favorable"`
	MaxAdverse   *float64 `json:"max_adverse"`
}

func (h *Handler) ListAlerts(c *gin.Context) {
	days := defaultAlertDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	alerts := h.sniper.RecentAlerts(days)
	if alerts == nil {
		alerts = []domain.AlertRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "alerts": alerts})
}

// ReportOutcome resolves a pending alert with its observed result.
func (h *Handler) ReportOutcome(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.report-outcome")
	defer span.End()

	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	id := c.Param("id")
	err := h.sniper.ReportOutcome(ctx, id, tracker.Outcome{
		Status:       domain.AlertStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		ProfitLoss:   req.ProfitLoss,
		MaxFavorable: req.MaxFavorable,
		MaxAdverse:   req.MaxAdverse,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "id": id})
	case errors.Is(err, domain.ErrUnknownAlert):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, domain.ErrInvalidOutcome):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) GetPerformance(c *gin.Context) {
	c.JSON(http.StatusOK, h.sniper.Summary())
}
