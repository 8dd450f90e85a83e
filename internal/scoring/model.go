package scoring

import (
	"fmt"
	"math"
	"time"

	"sniper-scanner/internal/combo"
	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/ta"
)

// Preferences supplies feedback multipliers. Scoring only reads them.
type Preferences interface {
	AssetPreference(symbol string) float64
	PatternPreference(patterns []string) float64
}

type neutralPreferences struct{}

func (neutralPreferences) AssetPreference(string) float64     { return 1.0 }
func (neutralPreferences) PatternPreference([]string) float64 { return 1.0 }

type Model struct {
	catalog *combo.Catalog
	prefs   Preferences
	oiFloor float64
	now     func() time.Time
}

func NewModel(catalog *combo.Catalog, prefs Preferences, oiFloor float64) *Model {
	if catalog == nil {
		catalog = combo.DefaultCatalog()
	}
	if prefs == nil {
		prefs = neutralPreferences{}
	}
	if oiFloor <= 0 {
		oiFloor = combo.DefaultOIFloor
	}
	return &Model{catalog: catalog, prefs: prefs, oiFloor: oiFloor, now: time.Now}
}

// VolatilityMultiplier maps the 20-return volatility onto a score weight.
// It is 1.0 when there are not enough closes.
func VolatilityMultiplier(closes []float64) (float64, float64) {
	vol, ok := ta.ReturnVolatility(closes, ta.VolatilityWindow)
	if !ok {
		return 1.0, 0
	}
	switch {
	case vol < 0.01:
		return 0.5, vol
	case vol < 0.02:
		return 0.8, vol
	case vol < 0.04:
		return 1.0, vol
	case vol < 0.06:
		return 1.3, vol
	default:
		return 1.5, vol
	}
}

func CapitalWeight(volume24h float64) float64 {
	switch {
	case volume24h > 100_000_000:
		return 1.5
	case volume24h > 50_000_000:
		return 1.3
	case volume24h > 10_000_000:
		return 1.1
	case volume24h > 1_000_000:
		return 1.0
	default:
		return 0.7
	}
}

// Score produces both directional scores for one symbol. An error means the
// symbol must be excluded from the cycle, which is distinct from scoring zero.
func (m *Model) Score(snap *domain.MarketSnapshot, ind domain.IndicatorSet, closes []float64) (*domain.ScoreResult, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: missing snapshot", domain.ErrInsufficientData)
	}
	for name, v := range map[string]float64{
		"rsi":           ind.RSI,
		"macd_line":     ind.MACDLine,
		"macd_signal":   ind.MACDSignal,
		"volume_ratio":  ind.VolumeRatio,
		"funding_rate":  snap.FundingRate,
		"open_interest": snap.OpenInterest,
		"volume_24h":    snap.Volume24h,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s %s=%v", domain.ErrInvalidIndicator, snap.Symbol, name, v)
		}
	}

	volMult, vol := VolatilityMultiplier(closes)
	capWeight := CapitalWeight(snap.Volume24h)
	liquid := snap.OpenInterest > m.oiFloor

	var long, short float64
	if ind.RSI < 35 {
		long += 3 * volMult
	}
	if ind.MACDBullish() {
		long += 2 * capWeight
	}
	if snap.FundingRate < 0 {
		long++
	}
	if ind.VolumeRatio > 1.5 {
		long += capWeight
	}
	if liquid {
		long++
	}

	if ind.RSI > 70 {
		short += 3 * volMult
	}
	if ind.MACDBearish() {
		short += 2 * capWeight
	}
	if snap.FundingRate > 0 {
		short++
	}
	if ind.VolumeRatio > 1.5 {
		short += capWeight
	}
	if !liquid {
		short++
	}

	set := combo.Evaluate(combo.Inputs{
		Indicators:   ind,
		FundingRate:  snap.FundingRate,
		OpenInterest: snap.OpenInterest,
		OIFloor:      m.oiFloor,
	})
	bonusLong, matchedLong := m.catalog.BonusFor(set, domain.DirectionLong)
	bonusShort, matchedShort := m.catalog.BonusFor(set, domain.DirectionShort)
	long += bonusLong
	short += bonusShort

	assetPref := m.prefs.AssetPreference(snap.Symbol)
	patternPrefLong := m.prefs.PatternPreference(names(matchedLong))
	patternPrefShort := m.prefs.PatternPreference(names(matchedShort))
	long *= assetPref * patternPrefLong
	short *= assetPref * patternPrefShort

	return &domain.ScoreResult{
		Symbol:       snap.Symbol,
		LongScore:    roundScore(long),
		ShortScore:   roundScore(short),
		Price:        snap.Price,
		FundingRate:  snap.FundingRate,
		OpenInterest: snap.OpenInterest,
		Volume24h:    snap.Volume24h,
		ReturnVol:    vol,
		Indicators:   ind,
		Multipliers: domain.Multipliers{
			Volatility:             volMult,
			CapitalWeight:          capWeight,
			ComboBonusLong:         bonusLong,
			ComboBonusShort:        bonusShort,
			AssetPreference:        assetPref,
			PatternPreferenceLong:  patternPrefLong,
			PatternPreferenceShort: patternPrefShort,
		},
		MatchedLong:  matchedLong,
		MatchedShort: matchedShort,
		ScoredAt:     m.now().UTC(),
	}, nil
}

func names(matches []domain.PatternMatch) []string {
	out := make([]string, 0, len(matches))
	for _, p := range matches {
		out = append(out, p.Name)
	}
	return out
}

// roundScore keeps one decimal and never returns a negative value.
func roundScore(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return math.Round(v*10) / 10
}
