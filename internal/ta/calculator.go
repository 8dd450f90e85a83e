package ta

import (
	"fmt"
	"math"

	"sniper-scanner/internal/domain"
)

const (
	RSIPeriod        = 14
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignal       = 9
	VolumeSMAPeriod  = 20
	VolatilityWindow = 20
)

// Compute derives the indicator set from the tail of a candle series.
// Callers must exclude the symbol on error instead of substituting defaults.
func Compute(series domain.CandleSeries) (domain.IndicatorSet, error) {
	if series.Len() < domain.MinCandles {
		return domain.IndicatorSet{}, fmt.Errorf("%w: %d candles, need %d", domain.ErrInsufficientData, series.Len(), domain.MinCandles)
	}

	closes := series.Closes()
	rsi := RSISeries(closes, RSIPeriod)
	line, signal := MACDSeries(closes, MACDFast, MACDSlow, MACDSignal)
	last := len(closes) - 1

	set := domain.IndicatorSet{
		RSI:         rsi[last],
		MACDLine:    line[last],
		MACDSignal:  signal[last],
		VolumeRatio: VolumeRatio(series.Volumes(), VolumeSMAPeriod),
	}
	for name, v := range map[string]float64{
		"rsi":          set.RSI,
		"macd_line":    set.MACDLine,
		"macd_signal":  set.MACDSignal,
		"volume_ratio": set.VolumeRatio,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.IndicatorSet{}, fmt.Errorf("%w: %s=%v", domain.ErrInvalidIndicator, name, v)
		}
	}
	return set, nil
}

// VolumeRatio compares the latest volume with the simple average of the trailing period,
// the latest bar included. It is 1 when the average is zero or undefined.
func VolumeRatio(volumes []float64, period int) float64 {
	if len(volumes) == 0 {
		return 1
	}
	start := len(volumes) - period
	if start < 0 {
		start = 0
	}
	avg := SMA(volumes[start:])
	if math.IsNaN(avg) || avg <= 0 {
		return 1
	}
	return volumes[len(volumes)-1] / avg
}

// ReturnVolatility is the sample standard deviation of the last window close-to-close returns.
func ReturnVolatility(closes []float64, window int) (float64, bool) {
	if window < 2 || len(closes) < window+1 {
		return 0, false
	}
	tail := closes[len(closes)-window-1:]
	returns := make([]float64, 0, window)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] == 0 {
			return 0, false
		}
		returns = append(returns, tail[i]/tail[i-1]-1)
	}
	std := SampleStd(returns)
	if math.IsNaN(std) || math.IsInf(std, 0) {
		return 0, false
	}
	return std, true
}
