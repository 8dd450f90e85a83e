package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBestDirectionFavoursLongOnTie(t *testing.T) {
	r := ScoreResult{LongScore: 5, ShortScore: 5}
	assert.Equal(t, DirectionLong, r.BestDirection())
	assert.Equal(t, 5.0, r.BestScore())

	r = ScoreResult{LongScore: 2, ShortScore: 6.5}
	assert.Equal(t, DirectionShort, r.BestDirection())
	assert.Equal(t, 6.5, r.BestScore())
}

func TestPatternNamesByDirection(t *testing.T) {
	r := ScoreResult{
		MatchedLong:  []PatternMatch{{Name: "A"}, {Name: "B"}},
		MatchedShort: []PatternMatch{{Name: "C"}},
	}
	assert.Equal(t, []string{"A", "B"}, r.PatternNames(DirectionLong))
	assert.Equal(t, []string{"C"}, r.PatternNames(DirectionShort))
}

func TestAlertStatusTerminal(t *testing.T) {
	assert.False(t, AlertPending.IsTerminal())
	assert.True(t, AlertHit.IsTerminal())
	assert.True(t, AlertMiss.IsTerminal())
	assert.True(t, AlertStopped.IsTerminal())
	assert.False(t, AlertStatus("LOST").IsValid())
}

func TestCandleSeriesAccessors(t *testing.T) {
	s := CandleSeries{Candles: []Candle{{Close: 1, Volume: 10}, {Close: 2, Volume: 20}}}
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []float64{1, 2}, s.Closes())
	assert.Equal(t, []float64{10, 20}, s.Volumes())
}

func TestScanStatsTotalSkipped(t *testing.T) {
	s := ScanStats{Skipped: map[SkipReason]int{SkipTimeout: 2, SkipUnavailable: 1}}
	assert.Equal(t, 3, s.TotalSkipped())
}
