package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string     `json:"status"`
	Ready       bool       `json:"ready"`
	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
	Ranked      int        `json:"ranked"`
	Target      string     `json:"target,omitempty"`
}

// Health always answers 200. Ready turns true once this process has
// completed a scan cycle.
func (h *Handler) Health(c *gin.Context) {
	resp := healthResponse{Status: "healthy"}
	if h.sniper != nil {
		if report := h.sniper.Latest(); report != nil {
			started := report.StartedAt
			resp.Ready = true
			resp.LastCycleAt = &started
			resp.Ranked = len(report.Ranked)
			if report.Target != nil {
				resp.Target = report.Target.Symbol
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}
