package provider

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	baseDelay           = 50 * time.Millisecond
	minDelay            = 10 * time.Millisecond
	maxDelay            = 2 * time.Second
	maxBackoff          = 30 * time.Second
	maxRetryCount       = 5
	recentErrorWindow   = 10 * time.Second
	healthySuccessRate  = 0.95
	degradedSuccessRate = 0.8
)

// Limiter gates outbound market data requests.
type Limiter interface {
	Acquire(ctx context.Context) error
	RecordOutcome(success, rateLimited bool)
}

// LimiterStats is a point-in-time view of the limiter state.
type LimiterStats struct {
	SuccessRate float64       `json:"success_rate"`
	Delay       time.Duration `json:"delay_ns"`
	RetryCount  int           `json:"retry_count"`
	InWindow    int           `json:"in_window"`
	MaxInWindow int           `json:"max_in_window"`
}

// AdaptiveRateLimiter bounds requests to maxPerWindow per sliding window and
// spaces them with a delay that widens on failures and narrows while healthy.
type AdaptiveRateLimiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	requests     []time.Time
	delay        time.Duration
	successRate  float64
	lastError    time.Time
	retryCount   int
	backoffUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewAdaptiveRateLimiter(maxPerWindow int, window time.Duration) *AdaptiveRateLimiter {
	if maxPerWindow <= 0 {
		maxPerWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &AdaptiveRateLimiter{
		maxPerWindow: maxPerWindow,
		window:       window,
		delay:        baseDelay,
		successRate:  1.0,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Acquire blocks until the caller may issue one request or ctx is done.
func (r *AdaptiveRateLimiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, delay := r.reserve()
		if wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		return r.sleep(ctx, delay)
	}
}

// reserve returns a positive wait when no slot is free yet. Otherwise it
// records the request and returns the pacing delay to apply.
func (r *AdaptiveRateLimiter) reserve() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Before(r.backoffUntil) {
		return r.backoffUntil.Sub(now), 0
	}

	cutoff := now.Add(-r.window)
	kept := r.requests[:0]
	for _, ts := range r.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.requests = kept

	if len(r.requests) >= r.maxPerWindow {
		wait := r.requests[0].Add(r.window).Sub(now)
		if wait <= 0 {
			wait = time.Millisecond
		}
		return wait, 0
	}

	r.requests = append(r.requests, now)
	r.adjustDelay(now)
	return 0, r.delay
}

func (r *AdaptiveRateLimiter) adjustDelay(now time.Time) {
	delay := float64(r.delay)
	switch {
	case r.successRate < degradedSuccessRate:
		delay *= 2
	case r.successRate > healthySuccessRate:
		delay *= 0.8
	}
	if !r.lastError.IsZero() && now.Sub(r.lastError) < recentErrorWindow {
		delay *= 1.5
	}
	r.delay = clampDuration(time.Duration(delay), minDelay, maxDelay)
}

// RecordOutcome feeds the result of one request back into the limiter.
func (r *AdaptiveRateLimiter) RecordOutcome(success, rateLimited bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if success {
		r.successRate = 0.9*r.successRate + 0.1
		r.retryCount = 0
		return
	}

	r.successRate = 0.9 * r.successRate
	r.lastError = now
	if rateLimited {
		if r.retryCount < maxRetryCount {
			r.retryCount++
		}
		backoff := time.Duration(math.Pow(2, float64(r.retryCount))) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		r.backoffUntil = now.Add(backoff)
	}
}

func (r *AdaptiveRateLimiter) Stats() LimiterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	inWindow := 0
	for _, ts := range r.requests {
		if ts.After(cutoff) {
			inWindow++
		}
	}
	return LimiterStats{
		SuccessRate: r.successRate,
		Delay:       r.delay,
		RetryCount:  r.retryCount,
		InWindow:    inWindow,
		MaxInWindow: r.maxPerWindow,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
