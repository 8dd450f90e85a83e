package domain

import (
	"errors"
	"time"
)

var (
	ErrRateLimited         = errors.New("rate limited by market data source")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrInvalidIndicator    = errors.New("invalid indicator value")
	ErrUniverseUnavailable = errors.New("symbol universe unavailable")
	ErrUnknownAlert        = errors.New("unknown alert")
	ErrAlreadyResolved     = errors.New("alert already resolved")
	ErrInvalidStatus       = errors.New("invalid alert status")
	ErrInvalidOutcome      = errors.New("invalid outcome value")
)

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// IndicatorSet holds the per-cycle technical readings for one symbol.
type IndicatorSet struct {
	RSI         float64 `json:"rsi"`
	MACDLine    float64 `json:"macd_line"`
	MACDSignal  float64 `json:"macd_signal"`
	VolumeRatio float64 `json:"volume_ratio"`
}

func (s IndicatorSet) MACDBullish() bool {
	return s.MACDLine > s.MACDSignal
}

func (s IndicatorSet) MACDBearish() bool {
	return s.MACDLine < s.MACDSignal
}

type PatternMatch struct {
	Name          string    `json:"name"`
	Direction     Direction `json:"direction"`
	Multiplier    float64   `json:"multiplier"`
	ConditionsMet []string  `json:"conditions_met"`
	Description   string    `json:"description,omitempty"`
}

// Multipliers records every factor applied while scoring a symbol.
type Multipliers struct {
	Volatility             float64 `json:"volatility"`
	CapitalWeight          float64 `json:"capital_weight"`
	ComboBonusLong         float64 `json:"combo_bonus_long"`
	ComboBonusShort        float64 `json:"combo_bonus_short"`
	AssetPreference        float64 `json:"asset_preference"`
	PatternPreferenceLong  float64 `json:"pattern_preference_long"`
	PatternPreferenceShort float64 `json:"pattern_preference_short"`
}

type ScoreResult struct {
	Symbol       string         `json:"symbol"`
	LongScore    float64        `json:"long_score"`
	ShortScore   float64        `json:"short_score"`
	Price        float64        `json:"price"`
	FundingRate  float64        `json:"funding_rate"`
	OpenInterest float64        `json:"open_interest"`
	Volume24h    float64        `json:"volume_24h"`
	ReturnVol    float64        `json:"return_volatility"`
	Indicators   IndicatorSet   `json:"indicators"`
	Multipliers  Multipliers    `json:"multipliers"`
	MatchedLong  []PatternMatch `json:"matched_patterns_long"`
	MatchedShort []PatternMatch `json:"matched_patterns_short"`
	ScoredAt     time.Time      `json:"scored_at"`
}

// BestDirection favours LONG when both directions score the same.
func (r ScoreResult) BestDirection() Direction {
	if r.LongScore >= r.ShortScore {
		return DirectionLong
	}
	return DirectionShort
}

func (r ScoreResult) BestScore() float64 {
	if r.LongScore >= r.ShortScore {
		return r.LongScore
	}
	return r.ShortScore
}

// PatternNames returns the names of the patterns matched for dir.
func (r ScoreResult) PatternNames(dir Direction) []string {
	matches := r.MatchedLong
	if dir == DirectionShort {
		matches = r.MatchedShort
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Name)
	}
	return names
}

type AlertStatus string

const (
	AlertPending AlertStatus = "PENDING"
	AlertHit     AlertStatus = "HIT"
	AlertMiss    AlertStatus = "MISS"
	AlertStopped AlertStatus = "STOPPED"
)

func (s AlertStatus) IsTerminal() bool {
	return s == AlertHit || s == AlertMiss || s == AlertStopped
}

func (s AlertStatus) IsValid() bool {
	return s == AlertPending || s.IsTerminal()
}

type AlertRecord struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	Direction    Direction   `json:"direction"`
	Score        float64     `json:"score"`
	Patterns     []string    `json:"patterns"`
	Timestamp    time.Time   `json:"timestamp"`
	Status       AlertStatus `json:"status"`
	ProfitLoss   *float64    `json:"profit_loss,omitempty"`
	MaxFavorable *float64    `json:"max_favorable,omitempty"`
	MaxAdverse   *float64    `json:"max_adverse,omitempty"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
}

type SkipReason string

const (
	SkipUnavailable      SkipReason = "unavailable"
	SkipInsufficientData SkipReason = "insufficient_data"
	SkipInvalidIndicator SkipReason = "invalid_indicator"
	SkipTimeout          SkipReason = "timeout"
)

type ScanStats struct {
	Requested int                `json:"requested"`
	Scored    int                `json:"scored"`
	Skipped   map[SkipReason]int `json:"skipped"`
	Duration  time.Duration      `json:"duration_ns"`
}

func (s ScanStats) TotalSkipped() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// CycleReport is everything a ranking consumer receives after one cycle.
type CycleReport struct {
	StartedAt   time.Time     `json:"started_at"`
	Ranked      []ScoreResult `json:"ranked"`
	Target      *ScoreResult  `json:"target,omitempty"`
	Threshold   float64       `json:"threshold"`
	FrenzyCount int           `json:"frenzy_count"`
	Frenzy      bool          `json:"frenzy"`
	AlertID     string        `json:"alert_id,omitempty"`
	Stats       ScanStats     `json:"stats"`
}
