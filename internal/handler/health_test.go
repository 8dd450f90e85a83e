package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthBeforeFirstCycle(t *testing.T) {
	r := newRouter(newTestHandler(&sniperStub{tracker: tracker.New(nil)}, nil, ""))

	w := do(r, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","ready":false,"ranked":0}`, w.Body.String())
}

func TestHealthReportsLatestCycle(t *testing.T) {
	report := sampleReport()
	report.StartedAt = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	report.Target = &domain.ScoreResult{Symbol: "BTCUSDT", LongScore: 9}
	r := newRouter(newTestHandler(&sniperStub{latest: report, tracker: tracker.New(nil)}, nil, ""))

	w := do(r, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ready)
	require.NotNil(t, resp.LastCycleAt)
	assert.True(t, report.StartedAt.Equal(*resp.LastCycleAt))
	assert.Equal(t, 3, resp.Ranked)
	assert.Equal(t, "BTCUSDT", resp.Target)
}

func TestAPIKeyAcceptsBearerToken(t *testing.T) {
	r := newRouter(newTestHandler(&sniperStub{tracker: tracker.New(nil)}, nil, "secret"))
	body := map[string]any{"symbols": []string{"BTCUSDT"}}

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/scan", body, map[string]string{"Authorization": "Bearer secret"}).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/scan", body, map[string]string{"Authorization": "bearer wrong"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/scan", body, map[string]string{"Authorization": "Basic secret"}).Code)
}
