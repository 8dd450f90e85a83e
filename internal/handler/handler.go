package handler

import (
	"context"
	"net/http"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/tracker"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// SniperAPI is the slice of the sniper service exposed over HTTP.
type SniperAPI interface {
	Latest() *domain.CycleReport
	TopCount() int
	AnalyzeOnDemand(ctx context.Context, symbols []string) domain.CycleReport
	RecentAlerts(days int) []domain.AlertRecord
	ReportOutcome(ctx context.Context, id string, outcome tracker.Outcome) error
	Summary() tracker.Summary
}

// ReportStore serves the last published report when the process has not
// completed a cycle of its own yet.
type ReportStore interface {
	Latest(ctx context.Context) (*domain.CycleReport, error)
}

type Handler struct {
	tracer  trace.Tracer
	sniper  SniperAPI
	store   ReportStore
	metrics http.Handler
	apiKey  string
}

func New(tracer trace.Tracer, sniper SniperAPI, store ReportStore, metrics http.Handler, apiKey string) *Handler {
	return &Handler{
		tracer:  tracer,
		sniper:  sniper,
		store:   store,
		metrics: metrics,
		apiKey:  apiKey,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := r.Group("/api")
	api.GET("/ranking", h.GetRanking)
	api.GET("/alerts", h.ListAlerts)
	api.GET("/performance", h.GetPerformance)

	protected := api.Group("", APIKeyAuth(h.apiKey))
	protected.POST("/scan", h.Scan)
	protected.POST("/alerts/:id/outcome", h.ReportOutcome)
}
