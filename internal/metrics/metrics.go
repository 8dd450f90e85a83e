package metrics

import (
	"net/http"
	"time"

	"sniper-scanner/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sniper"

// Metrics owns a dedicated registry. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	scanDuration   prometheus.Histogram
	symbolsScored  prometheus.Counter
	symbolsSkipped *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	requests       *prometheus.CounterVec
	limiterDelay   prometheus.Gauge
	successRate    prometheus.Gauge
	alerts         *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	frenzyCount    prometheus.Gauge
	topScore       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of one full scan of the symbol universe",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}),
		symbolsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_scored_total",
			Help:      "Symbols that produced a score",
		}),
		symbolsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_skipped_total",
			Help:      "Symbols excluded from a cycle by reason",
		}, []string{"reason"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by kind and result",
		}, []string{"kind", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_requests_total",
			Help:      "Outbound market data requests by result",
		}, []string{"result"}),
		limiterDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "limiter_delay_seconds",
			Help:      "Current adaptive pacing delay",
		}),
		successRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "limiter_success_rate",
			Help:      "Smoothed request success rate seen by the limiter",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts recorded by direction",
		}, []string{"direction"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_outcomes_total",
			Help:      "Resolved alert outcomes by status",
		}, []string{"status"}),
		frenzyCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frenzy_symbols",
			Help:      "Symbols scoring 8 or more in the last cycle",
		}),
		topScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "top_score",
			Help:      "Best score in the last cycle",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.scanDuration, m.symbolsScored, m.symbolsSkipped, m.cacheLookups, m.requests,
		m.limiterDelay, m.successRate, m.alerts, m.outcomes, m.frenzyCount, m.topScore,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RequestOutcome(success, rateLimited bool) {
	if m == nil {
		return
	}
	switch {
	case success:
		m.requests.WithLabelValues("ok").Inc()
	case rateLimited:
		m.requests.WithLabelValues("rate_limited").Inc()
	default:
		m.requests.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) LimiterState(delay time.Duration, successRate float64) {
	if m == nil {
		return
	}
	m.limiterDelay.Set(delay.Seconds())
	m.successRate.Set(successRate)
}

func (m *Metrics) ScanCompleted(stats domain.ScanStats) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(stats.Duration.Seconds())
	m.symbolsScored.Add(float64(stats.Scored))
	for reason, n := range stats.Skipped {
		m.symbolsSkipped.WithLabelValues(string(reason)).Add(float64(n))
	}
}

func (m *Metrics) CycleRanked(report domain.CycleReport) {
	if m == nil {
		return
	}
	m.frenzyCount.Set(float64(report.FrenzyCount))
	top := 0.0
	if len(report.Ranked) > 0 {
		top = report.Ranked[0].BestScore()
	}
	m.topScore.Set(top)
}

func (m *Metrics) AlertRecorded(dir domain.Direction) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(dir)).Inc()
}

func (m *Metrics) OutcomeReported(status domain.AlertStatus) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(status)).Inc()
}
