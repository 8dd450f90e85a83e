package combo

import (
	"errors"
	"fmt"
	"os"

	"sniper-scanner/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	MinMultiplier = 1.0
	MaxMultiplier = 3.0
)

type Pattern struct {
	Name        string
	Direction   domain.Direction
	Conditions  ConditionSet
	Multiplier  float64
	Description string
}

// Catalog is an ordered list of patterns. Order breaks multiplier ties.
type Catalog struct {
	patterns []Pattern
}

func NewCatalog(patterns []Pattern) (*Catalog, error) {
	c := &Catalog{patterns: append([]Pattern(nil), patterns...)}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func DefaultCatalog() *Catalog {
	return &Catalog{patterns: []Pattern{
		{"GOLDEN_CROSS_LONG", domain.DirectionLong, SetOf(MACDBullish, RSIOversold, VolumeHigh), 2.0,
			"MACD bullish with oversold RSI on high volume"},
		{"GOLDEN_CROSS_SHORT", domain.DirectionShort, SetOf(MACDBearish, RSIOverbought, VolumeHigh), 2.0,
			"MACD bearish with overbought RSI on high volume"},
		{"FUNDING_SQUEEZE_LONG", domain.DirectionLong, SetOf(FundingNegative, RSIOversold, OIUp), 1.8,
			"negative funding, oversold RSI, open interest building"},
		{"FUNDING_SQUEEZE_SHORT", domain.DirectionShort, SetOf(FundingPositive, RSIOverbought, OIDown), 1.8,
			"positive funding, overbought RSI, open interest thin"},
		{"VOLUME_SURGE_LONG", domain.DirectionLong, SetOf(VolumeSurge, RSIOversold, MACDBullish), 1.6,
			"volume above 2x average into oversold RSI with MACD bullish"},
		{"VOLUME_SURGE_SHORT", domain.DirectionShort, SetOf(VolumeSurge, RSIOverbought, MACDBearish), 1.6,
			"volume above 2x average into overbought RSI with MACD bearish"},
		{"EXTREME_REVERSAL_LONG", domain.DirectionLong, SetOf(RSIExtremeOversold, MACDBullish, FundingVeryNegative), 2.5,
			"RSI below 25, MACD bullish, funding below -0.1%"},
		{"EXTREME_REVERSAL_SHORT", domain.DirectionShort, SetOf(RSIExtremeOverbought, MACDBearish, FundingVeryPositive), 2.5,
			"RSI above 75, MACD bearish, funding above 0.1%"},
		{"MOMENTUM_BREAKOUT_LONG", domain.DirectionLong, SetOf(VolumeHigh, OIUp, RSIOversold, MACDBullish), 1.4,
			"high volume and open interest with oversold RSI and MACD bullish"},
		{"MOMENTUM_BREAKOUT_SHORT", domain.DirectionShort, SetOf(VolumeHigh, OIDown, RSIOverbought, MACDBearish), 1.4,
			"high volume on thin open interest with overbought RSI and MACD bearish"},
	}}
}

func (c *Catalog) Patterns() []Pattern {
	return append([]Pattern(nil), c.patterns...)
}

func (c *Catalog) Validate() error {
	if len(c.patterns) == 0 {
		return errors.New("combo catalog is empty")
	}
	seen := make(map[string]struct{}, len(c.patterns))
	for i, p := range c.patterns {
		if p.Name == "" {
			return fmt.Errorf("pattern %d: empty name", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("pattern %s: duplicate name", p.Name)
		}
		seen[p.Name] = struct{}{}
		if !p.Direction.IsValid() {
			return fmt.Errorf("pattern %s: invalid direction %q", p.Name, p.Direction)
		}
		if p.Conditions == 0 {
			return fmt.Errorf("pattern %s: no conditions", p.Name)
		}
		if p.Conditions>>conditionCount != 0 {
			return fmt.Errorf("pattern %s: unknown condition bits", p.Name)
		}
		if p.Multiplier < MinMultiplier || p.Multiplier > MaxMultiplier {
			return fmt.Errorf("pattern %s: multiplier %.2f outside [%.1f, %.1f]", p.Name, p.Multiplier, MinMultiplier, MaxMultiplier)
		}
	}
	return nil
}

// Match returns every pattern for dir whose conditions all hold, in catalog order.
func (c *Catalog) Match(set ConditionSet, dir domain.Direction) []domain.PatternMatch {
	var out []domain.PatternMatch
	for _, p := range c.patterns {
		if p.Direction != dir || !set.HasAll(p.Conditions) {
			continue
		}
		out = append(out, domain.PatternMatch{
			Name:          p.Name,
			Direction:     p.Direction,
			Multiplier:    p.Multiplier,
			ConditionsMet: p.Conditions.Names(),
			Description:   p.Description,
		})
	}
	return out
}

// BonusFor returns the best matched multiplier minus one. Only one pattern contributes.
func (c *Catalog) BonusFor(set ConditionSet, dir domain.Direction) (float64, []domain.PatternMatch) {
	matches := c.Match(set, dir)
	if len(matches) == 0 {
		return 0, nil
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Multiplier > best.Multiplier {
			best = m
		}
	}
	return best.Multiplier - 1.0, matches
}

type catalogFile struct {
	Patterns []struct {
		Name        string   `yaml:"name"`
		Direction   string   `yaml:"direction"`
		Conditions  []string `yaml:"conditions"`
		Multiplier  float64  `yaml:"multiplier"`
		Description string   `yaml:"description"`
	} `yaml:"patterns"`
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode combo catalog: %w", err)
	}
	patterns := make([]Pattern, 0, len(file.Patterns))
	for _, raw := range file.Patterns {
		var set ConditionSet
		for _, name := range raw.Conditions {
			cond, err := ParseCondition(name)
			if err != nil {
				return nil, fmt.Errorf("pattern %s: %w", raw.Name, err)
			}
			set |= SetOf(cond)
		}
		patterns = append(patterns, Pattern{
			Name:        raw.Name,
			Direction:   domain.Direction(raw.Direction),
			Conditions:  set,
			Multiplier:  raw.Multiplier,
			Description: raw.Description,
		})
	}
	return NewCatalog(patterns)
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read combo catalog: %w", err)
	}
	return ParseCatalog(data)
}
