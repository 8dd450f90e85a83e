package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/metrics"
	"sniper-scanner/internal/ranking"
	"sniper-scanner/internal/scanner"
	"sniper-scanner/internal/tracker"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseThreshold = 7.0
	DefaultAlertCooldown = 5 * time.Minute
)

type Scanner interface {
	ScanAll(ctx context.Context) (scanner.Report, error)
	ScanSome(ctx context.Context, symbols []string) scanner.Report
}

type Tracker interface {
	RecordAlert(ctx context.Context, symbol string, dir domain.Direction, score float64, patterns []string) (domain.AlertRecord, error)
	ReportOutcomeDetailed(ctx context.Context, id string, outcome tracker.Outcome) error
	Summary() tracker.Summary
	RecentAlerts(since time.Time) []domain.AlertRecord
	Cleanup(ctx context.Context, cutoff time.Time) int
	Restore(records []domain.AlertRecord)
}

// RankingConsumer receives every completed cycle.
type RankingConsumer interface {
	Consume(ctx context.Context, report domain.CycleReport) error
}

// AlertLister reads back journaled alerts for a warm start.
type AlertLister interface {
	ListAlerts(ctx context.Context, since time.Time) ([]domain.AlertRecord, error)
}

type Config struct {
	BaseThreshold float64
	HourWindow    ranking.HourWindow
	AlertCooldown time.Duration
	TopCount      int
}

func (c Config) withDefaults() Config {
	if c.BaseThreshold <= 0 {
		c.BaseThreshold = DefaultBaseThreshold
	}
	if c.HourWindow.Location == nil && c.HourWindow.Start == 0 && c.HourWindow.End == 0 {
		c.HourWindow = ranking.DefaultHourWindow()
	}
	if c.AlertCooldown < 0 {
		c.AlertCooldown = DefaultAlertCooldown
	}
	if c.TopCount <= 0 {
		c.TopCount = ranking.DefaultTopCount
	}
	return c
}

// SniperService runs the scan, rank, select and alert cycle and fans
// the result out to ranking consumers.
type SniperService struct {
	tracer    trace.Tracer
	scanner   Scanner
	tracker   Tracker
	metrics   *metrics.Metrics
	consumers []RankingConsumer
	cfg       Config
	cooldown  *rate.Limiter
	now       func() time.Time

	mu     sync.RWMutex
	latest *domain.CycleReport
}

func NewSniperService(
	tracer trace.Tracer,
	scan Scanner,
	track Tracker,
	m *metrics.Metrics,
	cfg Config,
	consumers ...RankingConsumer,
) *SniperService {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.AlertCooldown > 0 {
		limit = rate.Every(cfg.AlertCooldown)
	}
	return &SniperService{
		tracer:    tracer,
		scanner:   scan,
		tracker:   track,
		metrics:   m,
		consumers: consumers,
		cfg:       cfg,
		cooldown:  rate.NewLimiter(limit, 1),
		now:       time.Now,
	}
}

// AddConsumer registers a consumer for subsequent cycles.
func (s *SniperService) AddConsumer(c RankingConsumer) {
	if c == nil {
		return
	}
	s.mu.Lock()
	s.consumers = append(s.consumers, c)
	s.mu.Unlock()
}

// RunCycle performs one full scan of the universe. Only a universe failure
// is returned as an error; per-symbol problems show up in the report stats.
func (s *SniperService) RunCycle(ctx context.Context) (*domain.CycleReport, error) {
	ctx, span := s.tracer.Start(ctx, "sniper-service.run-cycle")
	defer span.End()

	started := s.now()
	rep, err := s.scanner.ScanAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("run cycle: %w", err)
	}

	ranked := ranking.Rank(rep.Results)
	threshold := ranking.AdaptiveThreshold(s.cfg.BaseThreshold, started, s.cfg.HourWindow)
	frenzyCount, frenzy := ranking.DetectFrenzy(ranked)

	report := domain.CycleReport{
		StartedAt:   started,
		Ranked:      ranked,
		Threshold:   threshold,
		FrenzyCount: frenzyCount,
		Frenzy:      frenzy,
		Stats:       rep.Stats,
	}

	if target, ok := ranking.SelectTarget(ranked, threshold); ok {
		report.Target = target
		if s.cooldown.AllowN(s.now(), 1) {
			dir := target.BestDirection()
			rec, err := s.tracker.RecordAlert(ctx, target.Symbol, dir, target.BestScore(), target.PatternNames(dir))
			if err != nil {
				log.Error().Err(err).Str("symbol", target.Symbol).Msg("failed to record alert")
			} else {
				report.AlertID = rec.ID
				s.metrics.AlertRecorded(dir)
				log.Info().
					Str("alert_id", rec.ID).
					Str("symbol", rec.Symbol).
					Str("direction", string(dir)).
					Float64("score", rec.Score).
					Msg("sniper target alerted")
			}
		} else {
			log.Info().Str("symbol", target.Symbol).Msg("target found during alert cooldown")
		}
	}

	s.SetLatest(&report)
	s.metrics.CycleRanked(report)
	span.SetAttributes(
		attribute.Int("cycle.ranked", len(ranked)),
		attribute.Float64("cycle.threshold", threshold),
		attribute.Bool("cycle.frenzy", frenzy),
	)
	log.Info().
		Int("ranked", len(ranked)).
		Float64("threshold", threshold).
		Int("frenzy_count", frenzyCount).
		Bool("target", report.Target != nil).
		Msg("cycle complete")

	s.dispatch(ctx, report)
	return &report, nil
}

func (s *SniperService) dispatch(ctx context.Context, report domain.CycleReport) {
	s.mu.RLock()
	consumers := append([]RankingConsumer(nil), s.consumers...)
	s.mu.RUnlock()

	for _, c := range consumers {
		if err := c.Consume(ctx, report); err != nil {
			log.Warn().Err(err).Str("consumer", fmt.Sprintf("%T", c)).Msg("ranking consumer failed")
		}
	}
}

// AnalyzeOnDemand scores and ranks the given symbols without alerting.
func (s *SniperService) AnalyzeOnDemand(ctx context.Context, symbols []string) domain.CycleReport {
	ctx, span := s.tracer.Start(ctx, "sniper-service.analyze")
	defer span.End()

	started := s.now()
	rep := s.scanner.ScanSome(ctx, symbols)
	ranked := ranking.Rank(rep.Results)
	threshold := ranking.AdaptiveThreshold(s.cfg.BaseThreshold, started, s.cfg.HourWindow)
	count, frenzy := ranking.DetectFrenzy(ranked)
	target, _ := ranking.SelectTarget(ranked, threshold)
	return domain.CycleReport{
		StartedAt:   started,
		Ranked:      ranked,
		Target:      target,
		Threshold:   threshold,
		FrenzyCount: count,
		Frenzy:      frenzy,
		Stats:       rep.Stats,
	}
}

func (s *SniperService) Latest() *domain.CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *SniperService) SetLatest(report *domain.CycleReport) {
	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()
}

// TopCount is the number of ranked entries shown to humans.
func (s *SniperService) TopCount() int {
	return s.cfg.TopCount
}

func (s *SniperService) ReportOutcome(ctx context.Context, id string, outcome tracker.Outcome) error {
	ctx, span := s.tracer.Start(ctx, "sniper-service.report-outcome")
	defer span.End()

	if err := s.tracker.ReportOutcomeDetailed(ctx, id, outcome); err != nil {
		return err
	}
	s.metrics.OutcomeReported(outcome.Status)
	log.Info().Str("alert_id", id).Str("status", string(outcome.Status)).Msg("alert outcome reported")
	return nil
}

func (s *SniperService) Summary() tracker.Summary {
	return s.tracker.Summary()
}

func (s *SniperService) RecentAlerts(days int) []domain.AlertRecord {
	if days <= 0 {
		days = 7
	}
	return s.tracker.RecentAlerts(s.now().AddDate(0, 0, -days))
}

// Cleanup drops alerts older than retention and returns how many went.
func (s *SniperService) Cleanup(ctx context.Context, retention time.Duration) int {
	removed := s.tracker.Cleanup(ctx, s.now().Add(-retention))
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("retention", retention).Msg("old alerts removed")
	}
	return removed
}

// WarmStart rebuilds tracker state from journaled alerts newer than since.
func (s *SniperService) WarmStart(ctx context.Context, lister AlertLister, since time.Time) error {
	ctx, span := s.tracer.Start(ctx, "sniper-service.warm-start")
	defer span.End()

	records, err := lister.ListAlerts(ctx, since)
	if err != nil {
		return fmt.Errorf("warm start: %w", err)
	}
	s.tracker.Restore(records)
	log.Info().Int("alerts", len(records)).Msg("tracker restored from journal")
	return nil
}
