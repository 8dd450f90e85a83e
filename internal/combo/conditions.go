package combo

import (
	"fmt"
	"math/bits"
	"strings"

	"sniper-scanner/internal/domain"
)

// DefaultOIFloor is the open interest above which a symbol counts as oi_up.
const DefaultOIFloor = 1_000_000

type Condition uint8

const (
	RSIOversold Condition = iota
	RSIOverbought
	RSIExtremeOversold
	RSIExtremeOverbought
	MACDBullish
	MACDBearish
	VolumeHigh
	VolumeSurge
	FundingNegative
	FundingPositive
	FundingVeryNegative
	FundingVeryPositive
	OIUp
	OIDown
	conditionCount
)

var conditionNames = [conditionCount]string{
	RSIOversold:          "rsi_oversold",
	RSIOverbought:        "rsi_overbought",
	RSIExtremeOversold:   "rsi_extreme_oversold",
	RSIExtremeOverbought: "rsi_extreme_overbought",
	MACDBullish:          "macd_bullish",
	MACDBearish:          "macd_bearish",
	VolumeHigh:           "volume_high",
	VolumeSurge:          "volume_surge",
	FundingNegative:      "funding_negative",
	FundingPositive:      "funding_positive",
	FundingVeryNegative:  "funding_very_negative",
	FundingVeryPositive:  "funding_very_positive",
	OIUp:                 "oi_up",
	OIDown:               "oi_down",
}

func (c Condition) String() string {
	if c >= conditionCount {
		return fmt.Sprintf("condition(%d)", uint8(c))
	}
	return conditionNames[c]
}

func ParseCondition(name string) (Condition, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range conditionNames {
		if n == name {
			return Condition(i), nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", name)
}

// Inputs is everything a predicate may look at.
type Inputs struct {
	Indicators   domain.IndicatorSet
	FundingRate  float64
	OpenInterest float64
	OIFloor      float64
}

var predicates = [conditionCount]func(in Inputs) bool{
	RSIOversold:          func(in Inputs) bool { return in.Indicators.RSI < 35 },
	RSIOverbought:        func(in Inputs) bool { return in.Indicators.RSI > 70 },
	RSIExtremeOversold:   func(in Inputs) bool { return in.Indicators.RSI < 25 },
	RSIExtremeOverbought: func(in Inputs) bool { return in.Indicators.RSI > 75 },
	MACDBullish:          func(in Inputs) bool { return in.Indicators.MACDBullish() },
	MACDBearish:          func(in Inputs) bool { return in.Indicators.MACDBearish() },
	VolumeHigh:           func(in Inputs) bool { return in.Indicators.VolumeRatio > 1.5 },
	VolumeSurge:          func(in Inputs) bool { return in.Indicators.VolumeRatio > 2.0 },
	FundingNegative:      func(in Inputs) bool { return in.FundingRate < 0 },
	FundingPositive:      func(in Inputs) bool { return in.FundingRate > 0 },
	FundingVeryNegative:  func(in Inputs) bool { return in.FundingRate < -0.001 },
	FundingVeryPositive:  func(in Inputs) bool { return in.FundingRate > 0.001 },
	OIUp:                 func(in Inputs) bool { return in.OpenInterest > in.oiFloor() },
	OIDown:               func(in Inputs) bool { return in.OpenInterest <= in.oiFloor() },
}

func (in Inputs) oiFloor() float64 {
	if in.OIFloor > 0 {
		return in.OIFloor
	}
	return DefaultOIFloor
}

// ConditionSet is a bitset of satisfied conditions.
type ConditionSet uint32

func SetOf(conds ...Condition) ConditionSet {
	var s ConditionSet
	for _, c := range conds {
		s |= 1 << c
	}
	return s
}

func (s ConditionSet) Has(c Condition) bool { return s&(1<<c) != 0 }

// HasAll reports whether every condition in other is also in s.
func (s ConditionSet) HasAll(other ConditionSet) bool { return s&other == other }

func (s ConditionSet) Len() int { return bits.OnesCount32(uint32(s)) }

// Names lists the set members in enum order.
func (s ConditionSet) Names() []string {
	out := make([]string, 0, s.Len())
	for c := Condition(0); c < conditionCount; c++ {
		if s.Has(c) {
			out = append(out, c.String())
		}
	}
	return out
}

func Evaluate(in Inputs) ConditionSet {
	var s ConditionSet
	for c, pred := range predicates {
		if pred(in) {
			s |= 1 << Condition(c)
		}
	}
	return s
}
