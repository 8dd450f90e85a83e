package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"sniper-scanner/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	mu       sync.Mutex
	appended []domain.AlertRecord
	resolved []domain.AlertRecord
	cutoffs  []time.Time
	err      error
}

func (j *memJournal) AppendAlert(ctx context.Context, rec domain.AlertRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.appended = append(j.appended, rec)
	return j.err
}

func (j *memJournal) ResolveAlert(ctx context.Context, rec domain.AlertRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resolved = append(j.resolved, rec)
	return j.err
}

func (j *memJournal) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cutoffs = append(j.cutoffs, cutoff)
	return 0, j.err
}

func newTestTracker(j Journal) (*Tracker, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := New(j)
	tr.now = func() time.Time { return now }
	seq := 0
	tr.newID = func() string {
		seq++
		return fmt.Sprintf("alert-%d", seq)
	}
	return tr, &now
}

func pnl(v float64) *float64 { return &v }

func TestRecordAlertStartsPending(t *testing.T) {
	j := &memJournal{}
	tr, _ := newTestTracker(j)

	rec, err := tr.RecordAlert(context.Background(), "BTCUSDT", domain.DirectionLong, 8.5, []string{"GOLDEN_CROSS_LONG"})
	require.NoError(t, err)
	assert.Equal(t, domain.AlertPending, rec.Status)
	assert.Equal(t, "alert-1", rec.ID)
	require.Len(t, j.appended, 1)

	_, err = tr.RecordAlert(context.Background(), "BTCUSDT", "FLAT", 8.5, nil)
	require.Error(t, err)
}

func TestReportOutcomeIsSingleTransition(t *testing.T) {
	tr, _ := newTestTracker(nil)
	ctx := context.Background()
	rec, _ := tr.RecordAlert(ctx, "BTCUSDT", domain.DirectionLong, 8.5, []string{"GOLDEN_CROSS_LONG"})

	require.NoError(t, tr.ReportOutcome(ctx, rec.ID, domain.AlertHit, pnl(150)))
	before, _ := tr.AssetStats("BTCUSDT")

	err := tr.ReportOutcome(ctx, rec.ID, domain.AlertMiss, pnl(-50))
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)

	after, _ := tr.AssetStats("BTCUSDT")
	assert.Equal(t, before, after)
	got, _ := tr.Get(rec.ID)
	assert.Equal(t, domain.AlertHit, got.Status)
	assert.Equal(t, 150.0, *got.ProfitLoss)
	assert.Equal(t, 1, after.TotalAlerts)
	assert.Equal(t, 150.0, after.CumulativePnL)
}

func TestReportOutcomeErrors(t *testing.T) {
	tr, _ := newTestTracker(nil)
	ctx := context.Background()

	err := tr.ReportOutcome(ctx, "missing", domain.AlertHit, nil)
	require.ErrorIs(t, err, domain.ErrUnknownAlert)

	rec, _ := tr.RecordAlert(ctx, "ETHUSDT", domain.DirectionShort, 6.1, nil)
	err = tr.ReportOutcome(ctx, rec.ID, domain.AlertPending, nil)
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestReportOutcomeRejectsNonFiniteValues(t *testing.T) {
	tr, _ := newTestTracker(nil)
	ctx := context.Background()
	rec, _ := tr.RecordAlert(ctx, "BTCUSDT", domain.DirectionLong, 8.5, nil)

	for _, outcome := range []Outcome{
		{Status: domain.AlertHit, ProfitLoss: pnl(math.NaN())},
		{Status: domain.AlertHit, ProfitLoss: pnl(math.Inf(1))},
		{Status: domain.AlertMiss, MaxFavorable: pnl(math.Inf(-1))},
		{Status: domain.AlertStopped, MaxAdverse: pnl(math.NaN())},
	} {
		require.ErrorIs(t, tr.ReportOutcomeDetailed(ctx, rec.ID, outcome), domain.ErrInvalidOutcome)
	}

	got, _ := tr.Get(rec.ID)
	assert.Equal(t, domain.AlertPending, got.Status)
	_, ok := tr.AssetStats("BTCUSDT")
	assert.False(t, ok)

	require.NoError(t, tr.ReportOutcome(ctx, rec.ID, domain.AlertHit, pnl(12)))
	stats, _ := tr.AssetStats("BTCUSDT")
	assert.Equal(t, 12.0, stats.CumulativePnL)
}

func TestAggregatesAcrossOutcomes(t *testing.T) {
	tr, _ := newTestTracker(nil)
	ctx := context.Background()

	statuses := []domain.AlertStatus{domain.AlertHit, domain.AlertHit, domain.AlertMiss, domain.AlertStopped}
	for _, st := range statuses {
		rec, _ := tr.RecordAlert(ctx, "SOLUSDT", domain.DirectionLong, 7.2, []string{"VOLUME_SURGE_LONG"})
		require.NoError(t, tr.ReportOutcome(ctx, rec.ID, st, nil))
	}

	stats, ok := tr.AssetStats("SOLUSDT")
	require.True(t, ok)
	assert.Equal(t, AssetStats{TotalAlerts: 4, Hits: 2, Misses: 1, Stops: 1, HitRate: 0.5}, stats)
	assert.Equal(t, RateStats{Total: 4, Hits: 2, HitRate: 0.5}, tr.BucketStats()[BucketHigh])
	assert.Equal(t, RateStats{Total: 4, Hits: 2, HitRate: 0.5}, tr.PatternStats()["VOLUME_SURGE_LONG"])
	assert.Equal(t, 1.0, tr.AssetPreference("SOLUSDT"))
}

func TestPreferenceMapping(t *testing.T) {
	cases := []struct {
		hits, misses int
		want         float64
	}{
		{4, 1, 1.3},
		{3, 2, 1.1},
		{2, 2, 1.0},
		{1, 4, 0.7},
	}
	for _, tc := range cases {
		tr, _ := newTestTracker(nil)
		ctx := context.Background()
		for i := 0; i < tc.hits+tc.misses; i++ {
			st := domain.AlertMiss
			if i < tc.hits {
				st = domain.AlertHit
			}
			rec, _ := tr.RecordAlert(ctx, "XRPUSDT", domain.DirectionLong, 5, []string{"P"})
			require.NoError(t, tr.ReportOutcome(ctx, rec.ID, st, nil))
		}
		assert.Equal(t, tc.want, tr.AssetPreference("XRPUSDT"), "%d/%d", tc.hits, tc.misses)
		assert.Equal(t, tc.want, tr.PatternPreference([]string{"P"}))
	}
}

func TestPreferenceColdStart(t *testing.T) {
	tr, _ := newTestTracker(nil)
	assert.Equal(t, 1.0, tr.AssetPreference("NEWUSDT"))
	assert.Equal(t, 1.0, tr.PatternPreference(nil))
	assert.Equal(t, 1.0, tr.PatternPreference([]string{"UNSEEN"}))
}

func TestPatternPreferenceAveragesKnownPatterns(t *testing.T) {
	tr, _ := newTestTracker(nil)
	ctx := context.Background()
	good, _ := tr.RecordAlert(ctx, "A", domain.DirectionLong, 9, []string{"GOOD"})
	bad, _ := tr.RecordAlert(ctx, "B", domain.DirectionLong, 9, []string{"BAD"})
	require.NoError(t, tr.ReportOutcome(ctx, good.ID, domain.AlertHit, nil))
	require.NoError(t, tr.ReportOutcome(ctx, bad.ID, domain.AlertMiss, nil))

	assert.InDelta(t, 1.0, tr.PatternPreference([]string{"GOOD", "BAD", "UNSEEN"}), 1e-9)
}

func TestPreferencesStayBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr, _ := newTestTracker(nil)
	ctx := context.Background()
	statuses := []domain.AlertStatus{domain.AlertHit, domain.AlertMiss, domain.AlertStopped}
	symbols := []string{"A", "B", "C"}
	patterns := []string{"P1", "P2", "P3", "P4"}

	for i := 0; i < 500; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		pats := []string{patterns[rng.Intn(len(patterns))], patterns[rng.Intn(len(patterns))]}
		rec, _ := tr.RecordAlert(ctx, sym, domain.DirectionLong, rng.Float64()*10, pats)
		require.NoError(t, tr.ReportOutcome(ctx, rec.ID, statuses[rng.Intn(len(statuses))], nil))

		for _, s := range symbols {
			assert.Contains(t, []float64{0.7, 1.0, 1.1, 1.3}, tr.AssetPreference(s))
		}
		p := tr.PatternPreference(patterns)
		assert.GreaterOrEqual(t, p, 0.7)
		assert.LessOrEqual(t, p, 1.3)
	}
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, BucketLow, BucketFor(3.9))
	assert.Equal(t, BucketMid, BucketFor(4))
	assert.Equal(t, BucketHigh, BucketFor(7.99))
	assert.Equal(t, BucketExtreme, BucketFor(8))
	assert.Equal(t, BucketExtreme, BucketFor(10))
}

func TestSummaryRequiresMinimumSamples(t *testing.T) {
	tr, _ := newTestTracker(nil)
	ctx := context.Background()

	s := tr.Summary()
	assert.Zero(t, s.Completed)
	assert.Nil(t, s.BestAsset)

	resolve := func(sym, pattern string, st domain.AlertStatus) {
		rec, _ := tr.RecordAlert(ctx, sym, domain.DirectionLong, 8, []string{pattern})
		require.NoError(t, tr.ReportOutcome(ctx, rec.ID, st, pnl(10)))
	}
	for i := 0; i < 3; i++ {
		resolve("BTCUSDT", "GOLDEN_CROSS_LONG", domain.AlertHit)
		resolve("ETHUSDT", "FUNDING_SQUEEZE_LONG", domain.AlertMiss)
	}
	resolve("DOGEUSDT", "EXTREME_REVERSAL_LONG", domain.AlertHit)
	_, _ = tr.RecordAlert(ctx, "ADAUSDT", domain.DirectionShort, 7, nil)

	s = tr.Summary()
	assert.Equal(t, 8, s.TotalAlerts)
	assert.Equal(t, 7, s.Completed)
	assert.InDelta(t, 4.0/7.0, s.HitRate, 1e-9)
	require.NotNil(t, s.BestAsset)
	assert.Equal(t, "BTCUSDT", s.BestAsset.Symbol)
	assert.Equal(t, 30.0, s.BestAsset.TotalPnL)
	assert.Equal(t, "ETHUSDT", s.WorstAsset.Symbol)
	assert.Equal(t, "GOLDEN_CROSS_LONG", s.BestPattern.Pattern)
	assert.Equal(t, "FUNDING_SQUEEZE_LONG", s.WorstPattern.Pattern)
}

func TestRecentAlertsAndCleanup(t *testing.T) {
	j := &memJournal{}
	tr, now := newTestTracker(j)
	ctx := context.Background()

	old, _ := tr.RecordAlert(ctx, "BTCUSDT", domain.DirectionLong, 9, []string{"P"})
	require.NoError(t, tr.ReportOutcome(ctx, old.ID, domain.AlertHit, nil))
	*now = now.Add(40 * 24 * time.Hour)
	fresh, _ := tr.RecordAlert(ctx, "ETHUSDT", domain.DirectionShort, 7, nil)

	recent := tr.RecentAlerts(now.Add(-7 * 24 * time.Hour))
	require.Len(t, recent, 1)
	assert.Equal(t, fresh.ID, recent[0].ID)

	cutoff := now.Add(-30 * 24 * time.Hour)
	assert.Equal(t, 1, tr.Cleanup(ctx, cutoff))
	assert.Len(t, tr.Alerts(), 1)
	assert.Equal(t, []time.Time{cutoff}, j.cutoffs)

	// Aggregates survive cleanup.
	assert.Equal(t, 1.3, tr.AssetPreference("BTCUSDT"))
	err := tr.ReportOutcome(ctx, old.ID, domain.AlertHit, nil)
	require.ErrorIs(t, err, domain.ErrUnknownAlert)
}

func TestJournalFailureDoesNotBlock(t *testing.T) {
	j := &memJournal{err: errors.New("db down")}
	tr, _ := newTestTracker(j)
	ctx := context.Background()

	rec, err := tr.RecordAlert(ctx, "BTCUSDT", domain.DirectionLong, 9, nil)
	require.NoError(t, err)
	require.NoError(t, tr.ReportOutcome(ctx, rec.ID, domain.AlertHit, nil))
	assert.Equal(t, 1.3, tr.AssetPreference("BTCUSDT"))
}

func TestRestoreRebuildsAggregates(t *testing.T) {
	tr, now := newTestTracker(nil)
	ctx := context.Background()
	statuses := []domain.AlertStatus{domain.AlertHit, domain.AlertMiss, domain.AlertHit, domain.AlertStopped}
	for i, st := range statuses {
		*now = now.Add(time.Minute)
		rec, _ := tr.RecordAlert(ctx, "BTCUSDT", domain.DirectionLong, float64(3+2*i), []string{"P1", "P2"})
		require.NoError(t, tr.ReportOutcomeDetailed(ctx, rec.ID, Outcome{Status: st, ProfitLoss: pnl(float64(i)), MaxFavorable: pnl(2), MaxAdverse: pnl(-1)}))
	}
	_, _ = tr.RecordAlert(ctx, "ETHUSDT", domain.DirectionShort, 7, nil)

	restored, _ := newTestTracker(nil)
	restored.Restore(tr.Alerts())

	assert.Equal(t, tr.Alerts(), restored.Alerts())
	assert.Equal(t, tr.BucketStats(), restored.BucketStats())
	assert.Equal(t, tr.PatternStats(), restored.PatternStats())
	a, _ := tr.AssetStats("BTCUSDT")
	b, _ := restored.AssetStats("BTCUSDT")
	assert.Equal(t, a, b)
	assert.Equal(t, tr.Summary(), restored.Summary())
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	tr := New(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				rec, _ := tr.RecordAlert(ctx, "BTCUSDT", domain.DirectionLong, 8, []string{"P"})
				_ = tr.ReportOutcome(ctx, rec.ID, domain.AlertHit, nil)
			}
		}()
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				_ = tr.AssetPreference("BTCUSDT")
				_ = tr.PatternPreference([]string{"P"})
			}
		}()
	}
	wg.Wait()
	stats, _ := tr.AssetStats("BTCUSDT")
	assert.Equal(t, 400, stats.TotalAlerts)
}
