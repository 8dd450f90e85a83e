package job

import (
	"context"
	"time"

	"sniper-scanner/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const DefaultScanInterval = 15 * time.Minute

type CycleRunner interface {
	RunCycle(ctx context.Context) (*domain.CycleReport, error)
}

// ScanJob runs a full scan cycle on start and then on every tick.
type ScanJob struct {
	tracer   trace.Tracer
	runner   CycleRunner
	interval time.Duration
}

func NewScanJob(tracer trace.Tracer, runner CycleRunner, interval time.Duration) *ScanJob {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &ScanJob{tracer: tracer, runner: runner, interval: interval}
}

func (j *ScanJob) Start(ctx context.Context) {
	if j.runner == nil {
		log.Warn().Msg("scan job disabled: no runner")
		<-ctx.Done()
		return
	}

	log.Info().Dur("interval", j.interval).Msg("scan job starting")
	j.runOnce(ctx)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scan job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *ScanJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "scan-job.run-once")
	defer span.End()

	if _, err := j.runner.RunCycle(ctx); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("scan cycle failed")
	}
}
