package domain

import "time"

// MinCandles is the shortest series the indicator pipeline accepts.
const MinCandles = 20

// Candle represents a single OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// CandleSeries is an ordered run of candles for one symbol and interval, oldest first.
type CandleSeries struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`
}

func (s CandleSeries) Len() int {
	return len(s.Candles)
}

func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

func (s CandleSeries) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// MarketSnapshot is a point-in-time reading of a perpetual contract.
type MarketSnapshot struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	FundingRate  float64   `json:"funding_rate"`
	OpenInterest float64   `json:"open_interest"`
	Volume24h    float64   `json:"volume_24h"`
	Timestamp    time.Time `json:"timestamp"`
}
