package tracker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"sniper-scanner/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const summaryMinSamples = 3

type Bucket string

const (
	BucketLow     Bucket = "0-3.9"
	BucketMid     Bucket = "4-5.9"
	BucketHigh    Bucket = "6-7.9"
	BucketExtreme Bucket = "8-10"
)

func BucketFor(score float64) Bucket {
	switch {
	case score >= 8:
		return BucketExtreme
	case score >= 6:
		return BucketHigh
	case score >= 4:
		return BucketMid
	default:
		return BucketLow
	}
}

type AssetStats struct {
	TotalAlerts   int     `json:"total_alerts"`
	Hits          int     `json:"hits"`
	Misses        int     `json:"misses"`
	Stops         int     `json:"stops"`
	HitRate       float64 `json:"hit_rate"`
	CumulativePnL float64 `json:"cumulative_pnl"`
}

type RateStats struct {
	Total   int     `json:"total"`
	Hits    int     `json:"hits"`
	HitRate float64 `json:"hit_rate"`
}

func (s *RateStats) add(hit bool) {
	s.Total++
	if hit {
		s.Hits++
	}
	s.HitRate = float64(s.Hits) / float64(s.Total)
}

// Outcome is the externally observed result of an alert.
type Outcome struct {
	Status       domain.AlertStatus
	ProfitLoss   *float64
	MaxFavorable *float64
	MaxAdverse   *float64
}

func (o Outcome) validate() error {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"profit_loss", o.ProfitLoss},
		{"max_favorable", o.MaxFavorable},
		{"max_adverse", o.MaxAdverse},
	} {
		if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return fmt.Errorf("%w: %s must be finite", domain.ErrInvalidOutcome, f.name)
		}
	}
	return nil
}

// Journal persists alert records. Failures never block in-memory state.
type Journal interface {
	AppendAlert(ctx context.Context, rec domain.AlertRecord) error
	ResolveAlert(ctx context.Context, rec domain.AlertRecord) error
	DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tracker records alerts and turns resolved outcomes into score preferences.
type Tracker struct {
	mu       sync.RWMutex
	alerts   map[string]*domain.AlertRecord
	order    []string
	assets   map[string]*AssetStats
	buckets  map[Bucket]*RateStats
	patterns map[string]*RateStats

	journal Journal
	now     func() time.Time
	newID   func() string
}

func New(journal Journal) *Tracker {
	return &Tracker{
		alerts:   make(map[string]*domain.AlertRecord),
		assets:   make(map[string]*AssetStats),
		buckets:  make(map[Bucket]*RateStats),
		patterns: make(map[string]*RateStats),
		journal:  journal,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (t *Tracker) RecordAlert(ctx context.Context, symbol string, dir domain.Direction, score float64, patterns []string) (domain.AlertRecord, error) {
	if symbol == "" {
		return domain.AlertRecord{}, fmt.Errorf("record alert: empty symbol")
	}
	if !dir.IsValid() {
		return domain.AlertRecord{}, fmt.Errorf("record alert: invalid direction %q", dir)
	}

	rec := &domain.AlertRecord{
		ID:        t.newID(),
		Symbol:    symbol,
		Direction: dir,
		Score:     score,
		Patterns:  append([]string(nil), patterns...),
		Timestamp: t.now().UTC(),
		Status:    domain.AlertPending,
	}

	t.mu.Lock()
	t.alerts[rec.ID] = rec
	t.order = append(t.order, rec.ID)
	out := copyRecord(rec)
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.AppendAlert(ctx, out); err != nil {
			log.Warn().Err(err).Str("alert_id", out.ID).Msg("journal append failed")
		}
	}
	return out, nil
}

func (t *Tracker) ReportOutcome(ctx context.Context, id string, status domain.AlertStatus, profitLoss *float64) error {
	return t.ReportOutcomeDetailed(ctx, id, Outcome{Status: status, ProfitLoss: profitLoss})
}

// ReportOutcomeDetailed resolves a pending alert exactly once. A second report
// for the same alert returns ErrAlreadyResolved and changes nothing.
func (t *Tracker) ReportOutcomeDetailed(ctx context.Context, id string, outcome Outcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, outcome.Status)
	}
	if err := outcome.validate(); err != nil {
		return err
	}

	t.mu.Lock()
	rec, ok := t.alerts[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownAlert, id)
	}
	if rec.Status.IsTerminal() {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", domain.ErrAlreadyResolved, id, rec.Status)
	}

	resolvedAt := t.now().UTC()
	rec.Status = outcome.Status
	rec.ProfitLoss = copyFloat(outcome.ProfitLoss)
	rec.MaxFavorable = copyFloat(outcome.MaxFavorable)
	rec.MaxAdverse = copyFloat(outcome.MaxAdverse)
	rec.ResolvedAt = &resolvedAt
	t.applyLocked(rec)
	out := copyRecord(rec)
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.ResolveAlert(ctx, out); err != nil {
			log.Warn().Err(err).Str("alert_id", id).Msg("journal resolve failed")
		}
	}
	log.Info().Str("alert_id", id).Str("symbol", out.Symbol).Str("status", string(out.Status)).Msg("alert resolved")
	return nil
}

func (t *Tracker) applyLocked(rec *domain.AlertRecord) {
	hit := rec.Status == domain.AlertHit

	asset, ok := t.assets[rec.Symbol]
	if !ok {
		asset = &AssetStats{}
		t.assets[rec.Symbol] = asset
	}
	asset.TotalAlerts++
	switch rec.Status {
	case domain.AlertHit:
		asset.Hits++
	case domain.AlertMiss:
		asset.Misses++
	case domain.AlertStopped:
		asset.Stops++
	}
	asset.HitRate = float64(asset.Hits) / float64(asset.Hits+asset.Misses+asset.Stops)
	if rec.ProfitLoss != nil {
		asset.CumulativePnL += *rec.ProfitLoss
	}

	bucket := BucketFor(rec.Score)
	bs, ok := t.buckets[bucket]
	if !ok {
		bs = &RateStats{}
		t.buckets[bucket] = bs
	}
	bs.add(hit)

	for _, p := range rec.Patterns {
		ps, ok := t.patterns[p]
		if !ok {
			ps = &RateStats{}
			t.patterns[p] = ps
		}
		ps.add(hit)
	}
}

func preferenceFor(hitRate float64) float64 {
	switch {
	case hitRate > 0.7:
		return 1.3
	case hitRate > 0.5:
		return 1.1
	case hitRate < 0.3:
		return 0.7
	default:
		return 1.0
	}
}

// AssetPreference is 1.0 for symbols with no resolved alerts.
func (t *Tracker) AssetPreference(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats, ok := t.assets[symbol]
	if !ok {
		return 1.0
	}
	return preferenceFor(stats.HitRate)
}

// PatternPreference averages the preference of every supplied pattern that has history.
func (t *Tracker) PatternPreference(patterns []string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sum float64
	n := 0
	for _, p := range patterns {
		stats, ok := t.patterns[p]
		if !ok {
			continue
		}
		sum += preferenceFor(stats.HitRate)
		n++
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

func (t *Tracker) Get(id string) (domain.AlertRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.alerts[id]
	if !ok {
		return domain.AlertRecord{}, false
	}
	return copyRecord(rec), true
}

// Alerts returns every retained alert in recording order.
func (t *Tracker) Alerts() []domain.AlertRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.AlertRecord, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, copyRecord(t.alerts[id]))
	}
	return out
}

func (t *Tracker) RecentAlerts(since time.Time) []domain.AlertRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.AlertRecord
	for _, id := range t.order {
		rec := t.alerts[id]
		if !rec.Timestamp.Before(since) {
			out = append(out, copyRecord(rec))
		}
	}
	return out
}

func (t *Tracker) AssetStats(symbol string) (AssetStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.assets[symbol]
	if !ok {
		return AssetStats{}, false
	}
	return *s, true
}

func (t *Tracker) BucketStats() map[Bucket]RateStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Bucket]RateStats, len(t.buckets))
	for k, v := range t.buckets {
		out[k] = *v
	}
	return out
}

func (t *Tracker) PatternStats() map[string]RateStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]RateStats, len(t.patterns))
	for k, v := range t.patterns {
		out[k] = *v
	}
	return out
}

type RankedAsset struct {
	Symbol   string  `json:"symbol"`
	HitRate  float64 `json:"hit_rate"`
	TotalPnL float64 `json:"total_pnl"`
}

type RankedPattern struct {
	Pattern string  `json:"pattern"`
	HitRate float64 `json:"hit_rate"`
}

type Summary struct {
	TotalAlerts  int            `json:"total_alerts"`
	Completed    int            `json:"completed"`
	HitRate      float64        `json:"hit_rate"`
	BestAsset    *RankedAsset   `json:"best_asset"`
	WorstAsset   *RankedAsset   `json:"worst_asset"`
	BestPattern  *RankedPattern `json:"best_pattern"`
	WorstPattern *RankedPattern `json:"worst_pattern"`
}

// Summary reports overall accuracy and the extremes among assets and patterns
// with at least three resolved samples. Ties go to the alphabetically first name.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{TotalAlerts: len(t.alerts)}
	hits := 0
	for _, rec := range t.alerts {
		if rec.Status.IsTerminal() {
			s.Completed++
			if rec.Status == domain.AlertHit {
				hits++
			}
		}
	}
	if s.Completed == 0 {
		return s
	}
	s.HitRate = float64(hits) / float64(s.Completed)

	for _, sym := range sortedKeys(t.assets) {
		st := t.assets[sym]
		if st.TotalAlerts < summaryMinSamples {
			continue
		}
		ra := &RankedAsset{Symbol: sym, HitRate: st.HitRate, TotalPnL: st.CumulativePnL}
		if s.BestAsset == nil || ra.HitRate > s.BestAsset.HitRate {
			s.BestAsset = ra
		}
		if s.WorstAsset == nil || ra.HitRate < s.WorstAsset.HitRate {
			s.WorstAsset = ra
		}
	}
	for _, name := range sortedKeys(t.patterns) {
		st := t.patterns[name]
		if st.Total < summaryMinSamples {
			continue
		}
		rp := &RankedPattern{Pattern: name, HitRate: st.HitRate}
		if s.BestPattern == nil || rp.HitRate > s.BestPattern.HitRate {
			s.BestPattern = rp
		}
		if s.WorstPattern == nil || rp.HitRate < s.WorstPattern.HitRate {
			s.WorstPattern = rp
		}
	}
	return s
}

// Cleanup drops alerts recorded before cutoff. Aggregates are kept.
func (t *Tracker) Cleanup(ctx context.Context, cutoff time.Time) int {
	t.mu.Lock()
	kept := t.order[:0]
	removed := 0
	for _, id := range t.order {
		if t.alerts[id].Timestamp.Before(cutoff) {
			delete(t.alerts, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	t.mu.Unlock()

	if t.journal != nil {
		if _, err := t.journal.DeleteAlertsBefore(ctx, cutoff); err != nil {
			log.Warn().Err(err).Time("cutoff", cutoff).Msg("journal cleanup failed")
		}
	}
	return removed
}

// Restore replaces all state with the given records, rebuilding aggregates
// from the resolved ones in timestamp order.
func (t *Tracker) Restore(records []domain.AlertRecord) {
	sorted := append([]domain.AlertRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.alerts = make(map[string]*domain.AlertRecord, len(sorted))
	t.order = t.order[:0]
	t.assets = make(map[string]*AssetStats)
	t.buckets = make(map[Bucket]*RateStats)
	t.patterns = make(map[string]*RateStats)

	for i := range sorted {
		rec := copyRecord(&sorted[i])
		if rec.ID == "" || !rec.Status.IsValid() {
			continue
		}
		if _, dup := t.alerts[rec.ID]; dup {
			continue
		}
		rec.Symbol = strings.ToUpper(rec.Symbol)
		t.alerts[rec.ID] = &rec
		t.order = append(t.order, rec.ID)
		if rec.Status.IsTerminal() {
			t.applyLocked(&rec)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyRecord(rec *domain.AlertRecord) domain.AlertRecord {
	out := *rec
	out.Patterns = append([]string(nil), rec.Patterns...)
	out.ProfitLoss = copyFloat(rec.ProfitLoss)
	out.MaxFavorable = copyFloat(rec.MaxFavorable)
	out.MaxAdverse = copyFloat(rec.MaxAdverse)
	if rec.ResolvedAt != nil {
		ts := *rec.ResolvedAt
		out.ResolvedAt = &ts
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
