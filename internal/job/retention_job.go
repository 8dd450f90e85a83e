package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRetention         = 30 * 24 * time.Hour
	DefaultRetentionInterval = 24 * time.Hour
)

type AlertCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) int
}

type CacheSweeper interface {
	Sweep() int
}

// RetentionJob periodically drops old alerts and expired cache entries.
type RetentionJob struct {
	tracer    trace.Tracer
	alerts    AlertCleaner
	cache     CacheSweeper
	retention time.Duration
	interval  time.Duration
}

func NewRetentionJob(tracer trace.Tracer, alerts AlertCleaner, cache CacheSweeper, retention, interval time.Duration) *RetentionJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	return &RetentionJob{tracer: tracer, alerts: alerts, cache: cache, retention: retention, interval: interval}
}

func (j *RetentionJob) Start(ctx context.Context) {
	j.runOnce(ctx)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *RetentionJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "retention-job.run-once")
	defer span.End()

	removed := 0
	if j.alerts != nil {
		removed = j.alerts.Cleanup(ctx, j.retention)
	}
	swept := 0
	if j.cache != nil {
		swept = j.cache.Sweep()
	}
	log.Debug().Int("alerts_removed", removed).Int("cache_swept", swept).Msg("retention pass complete")
}
