package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sniper-scanner/internal/cache"
	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/metrics"
	"sniper-scanner/internal/provider"
	"sniper-scanner/internal/scoring"
	"sniper-scanner/internal/ta"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxConcurrency = 15
	DefaultScanTimeout    = 60 * time.Second
	DefaultCandleInterval = "15"
	DefaultCandleLimit    = 50
)

type MarketDataSource interface {
	ListUniverse(ctx context.Context) ([]string, error)
	FetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error)
	FetchCandles(ctx context.Context, symbol, interval string, limit int) (domain.CandleSeries, error)
}

type Config struct {
	MaxConcurrency int
	ScanTimeout    time.Duration
	CandleInterval string
	CandleLimit    int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.CandleInterval == "" {
		c.CandleInterval = DefaultCandleInterval
	}
	if c.CandleLimit < domain.MinCandles {
		c.CandleLimit = DefaultCandleLimit
	}
	return c
}

type Report struct {
	Results []domain.ScoreResult
	Stats   domain.ScanStats
}

// Scanner fans a symbol list out to bounded workers, isolating per-symbol failures.
type Scanner struct {
	source  MarketDataSource
	limiter provider.Limiter
	cache   *cache.SnapshotCache
	model   *scoring.Model
	metrics *metrics.Metrics
	tracer  trace.Tracer
	cfg     Config
}

func New(
	tracer trace.Tracer,
	source MarketDataSource,
	limiter provider.Limiter,
	snapshots *cache.SnapshotCache,
	model *scoring.Model,
	m *metrics.Metrics,
	cfg Config,
) *Scanner {
	return &Scanner{
		source:  source,
		limiter: limiter,
		cache:   snapshots,
		model:   model,
		metrics: m,
		tracer:  tracer,
		cfg:     cfg.withDefaults(),
	}
}

// ScanAll scans the whole tradable universe. A universe failure yields no results.
func (s *Scanner) ScanAll(ctx context.Context) (Report, error) {
	ctx, span := s.tracer.Start(ctx, "scanner.scan-all")
	defer span.End()

	symbols, err := s.source.ListUniverse(ctx)
	if err != nil {
		span.RecordError(err)
		return Report{}, fmt.Errorf("%w: %v", domain.ErrUniverseUnavailable, err)
	}
	return s.ScanSome(ctx, symbols), nil
}

// ScanSome scores the given symbols within the scan timeout. Whatever
// finished before the deadline is returned; the rest counts as timed out.
func (s *Scanner) ScanSome(ctx context.Context, symbols []string) Report {
	ctx, span := s.tracer.Start(ctx, "scanner.scan-some")
	defer span.End()

	start := time.Now()
	unique := dedupe(symbols)
	span.SetAttributes(attribute.Int("scan.requested", len(unique)))

	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		closed  bool
		results = make([]domain.ScoreResult, 0, len(unique))
		skipped = make(map[domain.SkipReason]int)
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(s.cfg.MaxConcurrency)
		for _, sym := range unique {
			if scanCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				res, reason := s.scanOne(scanCtx, sym)
				mu.Lock()
				defer mu.Unlock()
				if closed {
					return nil
				}
				if res == nil {
					skipped[reason]++
					return nil
				}
				results = append(results, *res)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-scanCtx.Done():
	}

	mu.Lock()
	closed = true
	stats := domain.ScanStats{
		Requested: len(unique),
		Scored:    len(results),
		Skipped:   make(map[domain.SkipReason]int, len(skipped)+1),
	}
	for k, v := range skipped {
		stats.Skipped[k] = v
	}
	out := append([]domain.ScoreResult(nil), results...)
	mu.Unlock()

	if unfinished := stats.Requested - stats.Scored - stats.TotalSkipped(); unfinished > 0 {
		stats.Skipped[domain.SkipTimeout] += unfinished
	}
	stats.Duration = time.Since(start)

	s.metrics.ScanCompleted(stats)
	if ls, ok := s.limiter.(interface{ Stats() provider.LimiterStats }); ok {
		st := ls.Stats()
		s.metrics.LimiterState(st.Delay, st.SuccessRate)
	}
	span.SetAttributes(
		attribute.Int("scan.scored", stats.Scored),
		attribute.Int("scan.skipped", stats.TotalSkipped()),
	)
	log.Info().
		Int("requested", stats.Requested).
		Int("scored", stats.Scored).
		Int("skipped", stats.TotalSkipped()).
		Dur("duration", stats.Duration).
		Msg("scan finished")

	return Report{Results: out, Stats: stats}
}

func (s *Scanner) scanOne(ctx context.Context, symbol string) (*domain.ScoreResult, domain.SkipReason) {
	snap, err := s.snapshot(ctx, symbol)
	if err != nil {
		return s.skip(symbol, err)
	}
	series, err := s.candles(ctx, symbol)
	if err != nil {
		return s.skip(symbol, err)
	}
	ind, err := ta.Compute(series)
	if err != nil {
		return s.skip(symbol, err)
	}
	res, err := s.model.Score(snap, ind, series.Closes())
	if err != nil {
		return s.skip(symbol, err)
	}
	if res.ReturnVol > 0 {
		s.cache.ObserveVolatility(symbol, res.ReturnVol)
	}
	return res, ""
}

func (s *Scanner) skip(symbol string, err error) (*domain.ScoreResult, domain.SkipReason) {
	reason := classify(err)
	log.Debug().Str("symbol", symbol).Str("reason", string(reason)).Err(err).Msg("symbol skipped")
	return nil, reason
}

func classify(err error) domain.SkipReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.SkipTimeout
	case errors.Is(err, domain.ErrInsufficientData):
		return domain.SkipInsufficientData
	case errors.Is(err, domain.ErrInvalidIndicator):
		return domain.SkipInvalidIndicator
	default:
		return domain.SkipUnavailable
	}
}

func (s *Scanner) snapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	key := cache.Key{Symbol: symbol, Kind: cache.KindSnapshot}
	if v, ok := s.cache.Get(key); ok {
		if snap, ok := v.(*domain.MarketSnapshot); ok {
			return snap, nil
		}
	}
	var snap *domain.MarketSnapshot
	err := s.fetch(ctx, func() error {
		var err error
		snap, err = s.source.FetchSnapshot(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, snap, s.cache.VolatilityOf(symbol))
	return snap, nil
}

func (s *Scanner) candles(ctx context.Context, symbol string) (domain.CandleSeries, error) {
	key := cache.Key{Symbol: symbol, Kind: cache.KindCandles}
	if v, ok := s.cache.Get(key); ok {
		if series, ok := v.(domain.CandleSeries); ok {
			return series, nil
		}
	}
	var series domain.CandleSeries
	err := s.fetch(ctx, func() error {
		var err error
		series, err = s.source.FetchCandles(ctx, symbol, s.cfg.CandleInterval, s.cfg.CandleLimit)
		return err
	})
	if err != nil {
		return domain.CandleSeries{}, err
	}
	s.cache.Put(key, series, s.cache.VolatilityOf(symbol))
	return series, nil
}

// fetch takes one limiter permit for one outbound request and reports how it went.
func (s *Scanner) fetch(ctx context.Context, call func() error) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	err := call()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	rateLimited := errors.Is(err, domain.ErrRateLimited)
	s.limiter.RecordOutcome(err == nil, rateLimited)
	s.metrics.RequestOutcome(err == nil, rateLimited)
	return err
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
