package cache

import (
	"sync"
	"time"
)

type Kind string

const (
	KindSnapshot   Kind = "snapshot"
	KindCandles    Kind = "candles"
	KindIndicators Kind = "indicators"
	KindFunding    Kind = "funding"
)

const (
	MinTTL = 5 * time.Second
	MaxTTL = 120 * time.Second

	DefaultVolatility = 0.02
	highVolatility    = 0.05
	lowVolatility     = 0.01
	sweepInterval     = 30 * time.Second
)

var baseTTL = map[Kind]time.Duration{
	KindSnapshot:   5 * time.Second,
	KindCandles:    15 * time.Second,
	KindIndicators: 30 * time.Second,
	KindFunding:    60 * time.Second,
}

type Key struct {
	Symbol string
	Kind   Kind
}

type entry struct {
	payload    any
	insertedAt time.Time
	ttl        time.Duration
}

// StatsRecorder receives hit/miss notifications per kind.
type StatsRecorder interface {
	CacheLookup(kind string, hit bool)
}

type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// SnapshotCache is an in-process TTL cache whose entry lifetime shrinks as
// the observed volatility of the symbol grows.
type SnapshotCache struct {
	mu         sync.Mutex
	entries    map[Key]entry
	volatility map[string]float64
	hits       uint64
	misses     uint64
	lastSweep  time.Time
	recorder   StatsRecorder

	now func() time.Time
}

func NewSnapshotCache(recorder StatsRecorder) *SnapshotCache {
	return &SnapshotCache{
		entries:    make(map[Key]entry),
		volatility: make(map[string]float64),
		recorder:   recorder,
		now:        time.Now,
	}
}

// TTLFor is monotone non-increasing in volatility and always within [MinTTL, MaxTTL].
func TTLFor(kind Kind, volatility float64) time.Duration {
	ttl, ok := baseTTL[kind]
	if !ok {
		ttl = MinTTL
	}
	switch {
	case volatility > highVolatility:
		ttl /= 2
		if ttl < MinTTL {
			ttl = MinTTL
		}
	case volatility < lowVolatility:
		ttl *= 2
	}
	if ttl < MinTTL {
		return MinTTL
	}
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}

func (c *SnapshotCache) Get(key Key) (any, bool) {
	c.mu.Lock()
	now := c.now()
	if now.Sub(c.lastSweep) >= sweepInterval {
		c.sweepLocked(now)
	}

	e, ok := c.entries[key]
	if ok && now.Sub(e.insertedAt) > e.ttl {
		delete(c.entries, key)
		ok = false
	}
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.CacheLookup(string(key.Kind), ok)
	}
	if !ok {
		return nil, false
	}
	return e.payload, true
}

// Put stores payload with a TTL derived from volatilityHint. Nil payloads are not cached.
func (c *SnapshotCache) Put(key Key, payload any, volatilityHint float64) {
	if payload == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		payload:    payload,
		insertedAt: c.now(),
		ttl:        TTLFor(key.Kind, volatilityHint),
	}
}

// Sweep removes expired entries and returns how many were dropped.
func (c *SnapshotCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *SnapshotCache) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.insertedAt) > e.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	c.lastSweep = now
	return removed
}

func (c *SnapshotCache) ObserveVolatility(symbol string, v float64) {
	c.mu.Lock()
	c.volatility[symbol] = v
	c.mu.Unlock()
}

func (c *SnapshotCache) VolatilityOf(symbol string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.volatility[symbol]; ok {
		return v
	}
	return DefaultVolatility
}

func (c *SnapshotCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
