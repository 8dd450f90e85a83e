package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/tracker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type sniperStub struct {
	latest   *domain.CycleReport
	analyzed []string
	tracker  *tracker.Tracker
}

func (s *sniperStub) Latest() *domain.CycleReport { return s.latest }
func (s *sniperStub) TopCount() int               { return 2 }

func (s *sniperStub) AnalyzeOnDemand(ctx context.Context, symbols []string) domain.CycleReport {
	s.analyzed = symbols
	return domain.CycleReport{Ranked: []domain.ScoreResult{{Symbol: "BTCUSDT", LongScore: 5}}}
}

func (s *sniperStub) RecentAlerts(days int) []domain.AlertRecord {
	return s.tracker.RecentAlerts(time.Now().AddDate(0, 0, -days))
}

func (s *sniperStub) ReportOutcome(ctx context.Context, id string, outcome tracker.Outcome) error {
	return s.tracker.ReportOutcomeDetailed(ctx, id, outcome)
}

func (s *sniperStub) Summary() tracker.Summary { return s.tracker.Summary() }

type storeStub struct {
	report *domain.CycleReport
	err    error
}

func (s storeStub) Latest(ctx context.Context) (*domain.CycleReport, error) { return s.report, s.err }

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func newTestHandler(stub *sniperStub, store ReportStore, apiKey string) *Handler {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("sniper_up 1\n"))
	})
	return New(trace.NewNoopTracerProvider().Tracer("test"), stub, store, metrics, apiKey)
}

func do(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleReport() *domain.CycleReport {
	return &domain.CycleReport{
		Threshold: 6.3,
		Ranked: []domain.ScoreResult{
			{Symbol: "BTCUSDT", LongScore: 9},
			{Symbol: "ETHUSDT", LongScore: 8},
			{Symbol: "SOLUSDT", ShortScore: 7},
		},
	}
}

func TestGetRankingLimits(t *testing.T) {
	r := newRouter(newTestHandler(&sniperStub{latest: sampleReport(), tracker: tracker.New(nil)}, nil, ""))

	w := do(r, http.MethodGet, "/api/ranking", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body rankingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Ranked, 2)
	assert.Equal(t, 6.3, body.Threshold)

	w = do(r, http.MethodGet, "/api/ranking?limit=3", nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Ranked, 3)

	w = do(r, http.MethodGet, "/api/ranking?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRankingFallsBackToStore(t *testing.T) {
	stub := &sniperStub{tracker: tracker.New(nil)}

	r := newRouter(newTestHandler(stub, storeStub{report: sampleReport()}, ""))
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/ranking", nil, nil).Code)

	r = newRouter(newTestHandler(stub, storeStub{err: errors.New("redis down")}, ""))
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/ranking", nil, nil).Code)

	r = newRouter(newTestHandler(stub, nil, ""))
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/ranking", nil, nil).Code)
}

func TestScan(t *testing.T) {
	stub := &sniperStub{tracker: tracker.New(nil)}
	r := newRouter(newTestHandler(stub, nil, ""))

	w := do(r, http.MethodPost, "/api/scan", gin.H{"symbols": []string{"BTCUSDT"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"BTCUSDT"}, stub.analyzed)

	w = do(r, http.MethodPost, "/api/scan", gin.H{"symbols": []string{}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMutatingRoutesRequireAPIKey(t *testing.T) {
	stub := &sniperStub{tracker: tracker.New(nil)}
	r := newRouter(newTestHandler(stub, nil, "secret"))
	body := gin.H{"symbols": []string{"BTCUSDT"}}

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/scan", body, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/scan", body, map[string]string{"X-API-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/scan", body, map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/performance", nil, nil).Code)
}

func TestReportOutcomeStatusCodes(t *testing.T) {
	trk := tracker.New(nil)
	rec, err := trk.RecordAlert(context.Background(), "BTCUSDT", domain.DirectionLong, 8.2, []string{"GOLDEN_CROSS_LONG"})
	require.NoError(t, err)
	r := newRouter(newTestHandler(&sniperStub{tracker: trk}, nil, ""))
	path := "/api/alerts/" + rec.ID + "/outcome"

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, path, gin.H{"status": "PENDING"}, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, path, gin.H{}, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/alerts/missing/outcome", gin.H{"status": "HIT"}, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, path, gin.H{"status": "hit", "profit_loss": 1.5}, nil).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, path, gin.H{"status": "MISS"}, nil).Code)

	got, _ := trk.Get(rec.ID)
	assert.Equal(t, domain.AlertHit, got.Status)
	require.NotNil(t, got.ProfitLoss)
	assert.Equal(t, 1.5, *got.ProfitLoss)
}

func TestListAlertsAndPerformance(t *testing.T) {
	trk := tracker.New(nil)
	_, err := trk.RecordAlert(context.Background(), "ETHUSDT", domain.DirectionShort, 7.4, nil)
	require.NoError(t, err)
	r := newRouter(newTestHandler(&sniperStub{tracker: trk}, nil, ""))

	w := do(r, http.MethodGet, "/api/alerts?days=3", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Days   int                  `json:"days"`
		Alerts []domain.AlertRecord `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Days)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, "ETHUSDT", body.Alerts[0].Symbol)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/alerts?days=abc", nil, nil).Code)

	w = do(r, http.MethodGet, "/api/performance", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum tracker.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.TotalAlerts)
}

func TestMetricsRoute(t *testing.T) {
	r := newRouter(newTestHandler(&sniperStub{tracker: tracker.New(nil)}, nil, ""))
	w := do(r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sniper_up 1")
}
