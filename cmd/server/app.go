package main

import (
	"context"
	"fmt"
	"time"

	"sniper-scanner/internal/cache"
	"sniper-scanner/internal/combo"
	"sniper-scanner/internal/config"
	"sniper-scanner/internal/db"
	"sniper-scanner/internal/metrics"
	"sniper-scanner/internal/provider"
	"sniper-scanner/internal/ranking"
	"sniper-scanner/internal/repository"
	"sniper-scanner/internal/scanner"
	"sniper-scanner/internal/scoring"
	"sniper-scanner/internal/service"
	"sniper-scanner/internal/tracker"
	"sniper-scanner/pkg/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// app holds every long-lived component of one process.
type app struct {
	cfg       *config.Config
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	snapshots *cache.SnapshotCache
	tracker   *tracker.Tracker
	sniper    *service.SniperService
	pool      *pgxpool.Pool
	repo      *repository.AlertRepository
	redis     *redis.Client
	publisher *cache.RankingPublisher
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	tp, tracer, err := initTracerFunc(ctx, tracing.Options{
		Enabled:  cfg.TracingEnabled,
		Endpoint: cfg.OTLPEndpoint,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}

	a := &app{cfg: cfg, tp: tp, tracer: tracer, metrics: metrics.New()}

	catalog := combo.DefaultCatalog()
	if cfg.ComboCatalogPath != "" {
		catalog, err = combo.LoadCatalog(cfg.ComboCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load combo catalog: %w", err)
		}
		log.Info().Str("path", cfg.ComboCatalogPath).Int("patterns", len(catalog.Patterns())).Msg("combo catalog loaded")
	}

	if cfg.DatabaseURL != "" {
		pool, err := initPostgresFunc(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, alerts are kept in memory only")
		} else {
			a.pool = pool
			a.repo = repository.NewAlertRepository(pool, tracer)
		}
	}

	client, err := initRedisFunc(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, rankings are not published")
	} else {
		a.redis = client
		a.publisher = cache.NewRankingPublisher(client)
	}

	var journal tracker.Journal
	if a.repo != nil {
		journal = a.repo
	}
	a.tracker = tracker.New(journal)
	a.snapshots = cache.NewSnapshotCache(a.metrics)

	scan := scanner.New(
		tracer,
		newMarketDataFunc(tracer, cfg.BybitBaseURL),
		provider.NewAdaptiveRateLimiter(cfg.RateLimitPerMin, time.Minute),
		a.snapshots,
		scoring.NewModel(catalog, a.tracker, cfg.OIFloor),
		a.metrics,
		scanner.Config{
			MaxConcurrency: cfg.MaxConcurrency,
			ScanTimeout:    cfg.ScanTimeout,
			CandleInterval: cfg.CandleInterval,
			CandleLimit:    cfg.CandleLimit,
		},
	)

	a.sniper = service.NewSniperService(tracer, scan, a.tracker, a.metrics, service.Config{
		BaseThreshold: cfg.BaseThreshold,
		HourWindow: ranking.HourWindow{
			Start:    cfg.HighLiquidityStartHour,
			End:      cfg.HighLiquidityEndHour,
			Location: time.UTC,
		},
		AlertCooldown: cfg.AlertCooldown,
	})
	if a.publisher != nil {
		a.sniper.AddConsumer(a.publisher)
	}
	return a, nil
}

// prepareStorage applies pending migrations and restores tracked alerts.
func (a *app) prepareStorage(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	migrator, err := db.NewMigrator(a.pool)
	if err != nil {
		return err
	}
	if _, err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	since := time.Now().Add(-a.cfg.Retention())
	if err := a.sniper.WarmStart(ctx, a.repo, since); err != nil {
		log.Warn().Err(err).Msg("tracker warm start failed")
	}
	return nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}
}
