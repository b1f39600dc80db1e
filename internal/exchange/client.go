package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Client is stateless request/response access to instrument metadata,
// per-symbol snapshots, and candlestick history. market.Store depends on
// this interface rather than the concrete REST client so tests can
// substitute a fake.
type Client interface {
	GetInstruments(ctx context.Context) ([]Instrument, error)
	GetTickers(ctx context.Context) ([]TickerSnapshot, error)
	GetTicker(ctx context.Context, symbol string) (TickerSnapshot, error)
	GetKlines(ctx context.Context, symbol string, interval Interval, limit int) ([]float64, error)
}

// Config holds REST client configuration, defaulted the way kraken.Config
// is defaulted in NewClient.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	UserAgent      string
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.RateLimitRPS == 0 {
		c.RateLimitRPS = 5.0
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 5
	}
	if c.UserAgent == "" {
		c.UserAgent = "FundingPulse/1.0"
	}
}

// RESTClient is the concrete Kraken Futures REST implementation. Each
// endpoint family is wrapped in its own gobreaker.CircuitBreaker following
// the trip-condition shape of
// internal/infrastructure/providers/circuitbreakers.go GetDefaultConfigs:
// trip after 3 consecutive failures or a 30% error rate over at least 10
// requests in the rolling interval.
type RESTClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter

	instrumentsBreaker *gobreaker.CircuitBreaker
	tickersBreaker     *gobreaker.CircuitBreaker
	klinesBreaker      *gobreaker.CircuitBreaker
}

// NewRESTClient constructs a client with sensible defaults applied, per
// kraken.NewClient's pattern.
func NewRESTClient(cfg Config) *RESTClient {
	cfg.applyDefaults()

	newBreaker := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests >= 10 {
					errorRate := float64(counts.TotalFailures) / float64(counts.Requests)
					if errorRate >= 0.30 {
						return true
					}
				}
				return counts.ConsecutiveFailures >= 3
			},
		})
	}

	return &RESTClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),

		instrumentsBreaker: newBreaker("instruments"),
		tickersBreaker:     newBreaker("tickers"),
		klinesBreaker:      newBreaker("klines"),
	}
}

func (c *RESTClient) doGet(ctx context.Context, breaker *gobreaker.CircuitBreaker, op, path string) ([]byte, error) {
	result, err := breaker.Execute(func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &ExchangeError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
		}

		return body, nil
	})
	if err != nil {
		var te *TransportError
		var ee *ExchangeError
		if errors.As(err, &te) || errors.As(err, &ee) {
			return nil, err
		}
		// gobreaker returns its own error (e.g. ErrOpenState) when the
		// breaker is tripped; treat identically to a transport timeout.
		return nil, &TransportError{Op: op, Err: err}
	}
	return result.([]byte), nil
}

type wireInstrument struct {
	Symbol   string `json:"symbol"`
	Status   string `json:"status"`
	TickType string `json:"tickerSymbol"`
}

type instrumentsResponse struct {
	Instruments []wireInstrument `json:"instruments"`
}

// GetInstruments lists every instrument the exchange returns, each with its
// status; it does not filter on status (universe.Loader keeps only
// "Trading" instruments).
func (c *RESTClient) GetInstruments(ctx context.Context) ([]Instrument, error) {
	body, err := c.doGet(ctx, c.instrumentsBreaker, "getInstruments", "/instruments")
	if err != nil {
		return nil, err
	}

	var parsed instrumentsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ParseError{Op: "getInstruments", Err: err}
	}

	out := make([]Instrument, 0, len(parsed.Instruments))
	for _, wi := range parsed.Instruments {
		out = append(out, Instrument{Symbol: wi.Symbol, Status: wi.Status})
	}
	return out, nil
}

type wireTicker struct {
	Symbol          string      `json:"symbol"`
	Last            json.Number `json:"last"`
	Vol24h          json.Number `json:"vol24h"`
	OpenInterest    json.Number `json:"openInterest"`
	FundingRate     *json.Number `json:"fundingRate"`
	NextFundingTime int64       `json:"nextFundingRateTime"`
}

type tickersResponse struct {
	Tickers []wireTicker `json:"tickers"`
}

func normalizeTicker(wt wireTicker) TickerSnapshot {
	ts := TickerSnapshot{
		Symbol:          wt.Symbol,
		LastPrice:       numOrZero(wt.Last),
		Turnover24h:     numOrZero(wt.Vol24h),
		NextFundingTime: wt.NextFundingTime,
	}
	if wt.OpenInterest != "" {
		ts.OpenInterestCount = numOrZero(wt.OpenInterest)
		ts.OpenInterestValue = ts.OpenInterestCount * ts.LastPrice
	}
	if wt.FundingRate != nil {
		ts.HasFundingField = true
		// Wire rates are fractional; the client scales to percent on ingress.
		ts.FundingRatePct = numOrZero(*wt.FundingRate) * 100
	}
	return ts
}

func numOrZero(n json.Number) float64 {
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}

// GetTickers returns a bulk snapshot covering all instruments.
func (c *RESTClient) GetTickers(ctx context.Context) ([]TickerSnapshot, error) {
	body, err := c.doGet(ctx, c.tickersBreaker, "getTickers", "/tickers")
	if err != nil {
		return nil, err
	}

	var parsed tickersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ParseError{Op: "getTickers", Err: err}
	}

	out := make([]TickerSnapshot, 0, len(parsed.Tickers))
	for _, wt := range parsed.Tickers {
		out = append(out, normalizeTicker(wt))
	}
	return out, nil
}

// GetTicker returns a single symbol's snapshot.
func (c *RESTClient) GetTicker(ctx context.Context, symbol string) (TickerSnapshot, error) {
	body, err := c.doGet(ctx, c.tickersBreaker, "getTicker", "/tickers/"+symbol)
	if err != nil {
		return TickerSnapshot{}, err
	}

	var wt wireTicker
	if err := json.Unmarshal(body, &wt); err != nil {
		return TickerSnapshot{}, &ParseError{Op: "getTicker", Err: err}
	}
	return normalizeTicker(wt), nil
}

type klinesResponse struct {
	Candles []struct {
		Close json.Number `json:"close"`
	} `json:"candles"`
}

// GetKlines returns limit close prices, reversed to oldest-first as the
// wire format returns newest-first.
func (c *RESTClient) GetKlines(ctx context.Context, symbol string, interval Interval, limit int) ([]float64, error) {
	path := fmt.Sprintf("/history/markprice/%s?interval=%s&limit=%d", symbol, interval, limit)
	body, err := c.doGet(ctx, c.klinesBreaker, "getKlines", path)
	if err != nil {
		return nil, err
	}

	var parsed klinesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ParseError{Op: "getKlines", Err: err}
	}

	closes := make([]float64, len(parsed.Candles))
	for i, c := range parsed.Candles {
		closes[i] = numOrZero(c.Close)
	}
	// wire order is newest-first; reverse to oldest-first.
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}
	return closes, nil
}
