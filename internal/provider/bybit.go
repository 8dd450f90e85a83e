package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"sniper-scanner/internal/domain"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBybitBaseURL = "https://api.bybit.com"

	bybitCategory          = "linear"
	bybitRetOK             = 0
	bybitRetRateLimited    = 10006
	maxUniverseSymbolLen   = 12
	instrumentsPageLimit   = 1000
	maxInstrumentPages     = 20
	breakerFailureTrip     = 5
	breakerOpenTimeout     = 30 * time.Second
	bybitRequestTimeout    = 15 * time.Second
	contractLinearPerp     = "LinearPerpetual"
	instrumentStatusActive = "Trading"
)

// Symbols carrying these fragments are quoted per multiple contracts and skew the volume ratios.
var multiplierFragments = []string{"1000"}

// BybitProvider reads linear perpetual market data from the Bybit v5 REST API.
type BybitProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker
}

func NewBybitProvider(tracer trace.Tracer, baseURL string) *BybitProvider {
	if baseURL == "" {
		baseURL = DefaultBybitBaseURL
	}
	settings := gobreaker.Settings{
		Name:    "bybit",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureTrip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrRateLimited)
		},
	}
	return &BybitProvider{
		client:  &http.Client{Timeout: bybitRequestTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracer,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type bybitTicker struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	FundingRate  string `json:"fundingRate"`
	OpenInterest string `json:"openInterest"`
	Volume24h    string `json:"volume24h"`
}

type bybitInstrument struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	ContractType string `json:"contractType"`
	QuoteCoin    string `json:"quoteCoin"`
}

// ListUniverse returns every tradable USDT linear perpetual, sorted.
func (p *BybitProvider) ListUniverse(ctx context.Context) ([]string, error) {
	ctx, span := p.tracer.Start(ctx, "bybit.list-universe")
	defer span.End()

	seen := make(map[string]struct{})
	cursor := ""
	for page := 0; page < maxInstrumentPages; page++ {
		q := url.Values{}
		q.Set("category", bybitCategory)
		q.Set("limit", strconv.Itoa(instrumentsPageLimit))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var result struct {
			List           []bybitInstrument `json:"list"`
			NextPageCursor string            `json:"nextPageCursor"`
		}
		if err := p.get(ctx, "/v5/market/instruments-info", q, &result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("list instruments: %w", err)
		}
		for _, inst := range result.List {
			if eligibleInstrument(inst) {
				seen[inst.Symbol] = struct{}{}
			}
		}
		if result.NextPageCursor == "" || result.NextPageCursor == cursor {
			break
		}
		cursor = result.NextPageCursor
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	span.SetAttributes(attribute.Int("universe.size", len(symbols)))
	return symbols, nil
}

func eligibleInstrument(inst bybitInstrument) bool {
	sym := strings.ToUpper(inst.Symbol)
	if sym != inst.Symbol || !strings.HasSuffix(sym, "USDT") {
		return false
	}
	if inst.Status != instrumentStatusActive || inst.ContractType != contractLinearPerp {
		return false
	}
	if len(sym) > maxUniverseSymbolLen {
		return false
	}
	for _, frag := range multiplierFragments {
		if strings.Contains(sym, frag) {
			return false
		}
	}
	return true
}

func (p *BybitProvider) FetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "bybit.fetch-snapshot", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	q := url.Values{}
	q.Set("category", bybitCategory)
	q.Set("symbol", symbol)

	var result struct {
		List []bybitTicker `json:"list"`
	}
	if err := p.get(ctx, "/v5/market/tickers", q, &result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch ticker for %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("fetch ticker for %s: empty result", symbol)
	}

	t := result.List[0]
	price, err := parseFloat(t.LastPrice)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("fetch ticker for %s: invalid last price %q", symbol, t.LastPrice)
	}
	return &domain.MarketSnapshot{
		Symbol:       symbol,
		Price:        price,
		FundingRate:  parseFloatOrZero(t.FundingRate),
		OpenInterest: parseFloatOrZero(t.OpenInterest),
		Volume24h:    parseFloatOrZero(t.Volume24h),
		Timestamp:    time.Now().UTC(),
	}, nil
}

// FetchCandles returns up to limit bars ordered oldest to newest.
func (p *BybitProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) (domain.CandleSeries, error) {
	ctx, span := p.tracer.Start(ctx, "bybit.fetch-candles", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("interval", interval),
	))
	defer span.End()

	q := url.Values{}
	q.Set("category", bybitCategory)
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var result struct {
		List [][]string `json:"list"`
	}
	series := domain.CandleSeries{Symbol: symbol, Interval: interval}
	if err := p.get(ctx, "/v5/market/kline", q, &result); err != nil {
		span.RecordError(err)
		return series, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	candles := make([]domain.Candle, 0, len(result.List))
	for _, row := range result.List {
		c, err := parseKline(row)
		if err != nil {
			return series, fmt.Errorf("fetch klines for %s: %w", symbol, err)
		}
		candles = append(candles, c)
	}
	// Bybit lists the newest bar first.
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})
	series.Candles = candles
	return series, nil
}

func parseKline(row []string) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("malformed kline row of %d fields", len(row))
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("kline start time %q: %w", row[0], err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		v, err := parseFloat(row[i+1])
		if err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d %q: %w", i+1, row[i+1], err)
		}
		vals[i] = v
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(ms).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func (p *BybitProvider) get(ctx context.Context, path string, q url.Values, out any) error {
	body, err := p.breaker.Execute(func() (interface{}, error) {
		return p.doRequest(ctx, p.baseURL+path+"?"+q.Encode())
	})
	if err != nil {
		return err
	}

	var env bybitEnvelope
	if err := json.Unmarshal(body.([]byte), &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	switch env.RetCode {
	case bybitRetOK:
	case bybitRetRateLimited:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, env.RetMsg)
	default:
		return fmt.Errorf("bybit retCode %d: %s", env.RetCode, env.RetMsg)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (p *BybitProvider) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: http %d", domain.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bybit API error %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseFloatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := parseFloat(s)
	if err != nil {
		return 0
	}
	return v
}
