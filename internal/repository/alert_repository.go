package repository

import (
	"context"
	"fmt"
	"time"

	"sniper-scanner/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AlertRepository is the durable log of alert records.
type AlertRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAlertRepository(pool PgxPool, tracer trace.Tracer) *AlertRepository {
	return &AlertRepository{pool: pool, tracer: tracer}
}

func (r *AlertRepository) AppendAlert(ctx context.Context, rec domain.AlertRecord) error {
	ctx, span := r.tracer.Start(ctx, "alert-repo.append")
	defer span.End()

	patterns := rec.Patterns
	if patterns == nil {
		patterns = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO alerts (id, symbol, direction, score, patterns, created_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Symbol, string(rec.Direction), rec.Score, patterns, rec.Timestamp, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", rec.ID, err)
	}
	return nil
}

// ResolveAlert writes the terminal outcome. Rows that already left PENDING are untouched.
func (r *AlertRepository) ResolveAlert(ctx context.Context, rec domain.AlertRecord) error {
	ctx, span := r.tracer.Start(ctx, "alert-repo.resolve")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE alerts
		 SET status = $2, profit_loss = $3, max_favorable = $4, max_adverse = $5, resolved_at = $6
		 WHERE id = $1 AND status = 'PENDING'`,
		rec.ID, string(rec.Status), rec.ProfitLoss, rec.MaxFavorable, rec.MaxAdverse, rec.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("resolve alert %s: %w", rec.ID, err)
	}
	return nil
}

func (r *AlertRepository) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.delete-before")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM alerts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete alerts before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// ListAlerts returns alerts recorded at or after since, oldest first.
func (r *AlertRepository) ListAlerts(ctx context.Context, since time.Time) ([]domain.AlertRecord, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.list")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, symbol, direction, score, patterns, created_at, status,
		        profit_loss, max_favorable, max_adverse, resolved_at
		 FROM alerts
		 WHERE created_at >= $1
		 ORDER BY created_at ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRecord
	for rows.Next() {
		var (
			rec       domain.AlertRecord
			direction string
			status    string
		)
		if err := rows.Scan(&rec.ID, &rec.Symbol, &direction, &rec.Score, &rec.Patterns, &rec.Timestamp, &status,
			&rec.ProfitLoss, &rec.MaxFavorable, &rec.MaxAdverse, &rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		rec.Direction = domain.Direction(direction)
		rec.Status = domain.AlertStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
