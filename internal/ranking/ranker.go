package ranking

import (
	"sort"
	"time"

	"sniper-scanner/internal/domain"
)

const (
	MinThreshold    = 3.0
	MaxThreshold    = 10.0
	FrenzyScore     = 8.0
	FrenzyMinCount  = 3
	DefaultTopCount = 6

	highLiquidityFactor = 0.9
	lowLiquidityFactor  = 1.1
)

// HourWindow is an inclusive range of wall-clock hours in Location.
type HourWindow struct {
	Start    int
	End      int
	Location *time.Location
}

func DefaultHourWindow() HourWindow {
	return HourWindow{Start: 14, End: 16, Location: time.UTC}
}

func (w HourWindow) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	if w.Start <= w.End {
		return h >= w.Start && h <= w.End
	}
	// Window wraps midnight.
	return h >= w.Start || h <= w.End
}

// Rank orders results by best score descending, then symbol ascending.
// The input slice is left untouched.
func Rank(results []domain.ScoreResult) []domain.ScoreResult {
	out := append([]domain.ScoreResult(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].BestScore(), out[j].BestScore()
		if si != sj {
			return si > sj
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// SelectTarget returns the best ranked result if it reaches threshold.
func SelectTarget(ranked []domain.ScoreResult, threshold float64) (*domain.ScoreResult, bool) {
	if len(ranked) == 0 || ranked[0].BestScore() < threshold {
		return nil, false
	}
	target := ranked[0]
	return &target, true
}

// AdaptiveThreshold lowers the bar during the high-liquidity window and raises it otherwise.
func AdaptiveThreshold(base float64, now time.Time, window HourWindow) float64 {
	factor := lowLiquidityFactor
	if window.Contains(now) {
		factor = highLiquidityFactor
	}
	t := base * factor
	if t < MinThreshold {
		return MinThreshold
	}
	if t > MaxThreshold {
		return MaxThreshold
	}
	return t
}

func DetectFrenzy(ranked []domain.ScoreResult) (int, bool) {
	n := 0
	for _, r := range ranked {
		if r.BestScore() >= FrenzyScore {
			n++
		}
	}
	return n, n >= FrenzyMinCount
}

func Top(ranked []domain.ScoreResult, n int) []domain.ScoreResult {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
