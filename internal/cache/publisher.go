package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sniper-scanner/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	LatestRankingKey      = "ranking:latest"
	RankingUpdatesChannel = "ranking:updates"
	latestRankingTTL      = 24 * time.Hour
)

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RankingPublisher stores the latest cycle report in Redis and announces it on a channel.
type RankingPublisher struct {
	redis RedisClient
}

func NewRankingPublisher(client RedisClient) *RankingPublisher {
	return &RankingPublisher{redis: client}
}

func (p *RankingPublisher) Consume(ctx context.Context, report domain.CycleReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal cycle report: %w", err)
	}
	payload := string(data)
	if err := p.redis.Set(ctx, LatestRankingKey, payload, latestRankingTTL).Err(); err != nil {
		return fmt.Errorf("store latest ranking: %w", err)
	}
	if err := p.redis.Publish(ctx, RankingUpdatesChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish ranking update: %w", err)
	}
	return nil
}

// Latest returns the last stored report, or nil when none is stored.
func (p *RankingPublisher) Latest(ctx context.Context) (*domain.CycleReport, error) {
	val, err := p.redis.Get(ctx, LatestRankingKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest ranking: %w", err)
	}
	var report domain.CycleReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, fmt.Errorf("decode latest ranking: %w", err)
	}
	return &report, nil
}
