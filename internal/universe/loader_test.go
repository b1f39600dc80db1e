package universe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynastyquant/fundingpulse/internal/config"
	"github.com/dynastyquant/fundingpulse/internal/exchange"
)

type fakeClient struct {
	instruments []exchange.Instrument
	tickers     []exchange.TickerSnapshot
	tickersErr  error
}

func (f *fakeClient) GetInstruments(ctx context.Context) ([]exchange.Instrument, error) {
	return f.instruments, nil
}
func (f *fakeClient) GetTickers(ctx context.Context) ([]exchange.TickerSnapshot, error) {
	return f.tickers, f.tickersErr
}
func (f *fakeClient) GetTicker(ctx context.Context, symbol string) (exchange.TickerSnapshot, error) {
	return exchange.TickerSnapshot{}, nil
}
func (f *fakeClient) GetKlines(ctx context.Context, symbol string, interval exchange.Interval, limit int) ([]float64, error) {
	return nil, nil
}

func baseConfig() *config.Config {
	return &config.Config{
		MinVolume24hUSDT:    1_000_000,
		MinOpenInterestUSDT: 500_000,
		MinPriceUSDT:        0.0001,
		MaxPriceUSDT:        100_000,
		BlacklistSymbols:    map[string]struct{}{},
	}
}

func TestLoader_FiltersByAllCriteria(t *testing.T) {
	client := &fakeClient{
		instruments: []exchange.Instrument{
			{Symbol: "PF_GOODUSD", Status: "Trading"},
			{Symbol: "PF_DELISTED", Status: "Delisted"},
			{Symbol: "PF_LOWVOL", Status: "Trading"},
			{Symbol: "PF_LOWOI", Status: "Trading"},
			{Symbol: "PF_PRICEY", Status: "Trading"},
			{Symbol: "PF_NOFUNDING", Status: "Trading"},
		},
		tickers: []exchange.TickerSnapshot{
			{Symbol: "PF_GOODUSD", LastPrice: 10, Turnover24h: 2_000_000, OpenInterestValue: 600_000, HasFundingField: true},
			{Symbol: "PF_DELISTED", LastPrice: 10, Turnover24h: 2_000_000, OpenInterestValue: 600_000, HasFundingField: true},
			{Symbol: "PF_LOWVOL", LastPrice: 10, Turnover24h: 1, OpenInterestValue: 600_000, HasFundingField: true},
			{Symbol: "PF_LOWOI", LastPrice: 10, Turnover24h: 2_000_000, OpenInterestValue: 100, HasFundingField: true},
			{Symbol: "PF_PRICEY", LastPrice: 200_000, Turnover24h: 2_000_000, OpenInterestValue: 600_000, HasFundingField: true},
			{Symbol: "PF_NOFUNDING", LastPrice: 10, Turnover24h: 2_000_000, OpenInterestValue: 600_000, HasFundingField: false},
		},
	}

	loader := NewLoader(client, baseConfig())
	symbols, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "PF_GOODUSD", string(symbols[0]))
}

func TestLoader_BlacklistExcludesEvenWhenQualified(t *testing.T) {
	cfg := baseConfig()
	cfg.BlacklistSymbols["PF_GOODUSD"] = struct{}{}

	client := &fakeClient{
		instruments: []exchange.Instrument{{Symbol: "PF_GOODUSD", Status: "Trading"}},
		tickers: []exchange.TickerSnapshot{
			{Symbol: "PF_GOODUSD", LastPrice: 10, Turnover24h: 2_000_000, OpenInterestValue: 600_000, HasFundingField: true},
		},
	}

	loader := NewLoader(client, cfg)
	symbols, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestLoader_DegradesToUnfilteredListOnTickerFetchFailure(t *testing.T) {
	client := &fakeClient{
		instruments: []exchange.Instrument{{Symbol: "PF_GOODUSD", Status: "Trading"}},
		tickersErr:  assertErr{},
	}

	loader := NewLoader(client, baseConfig())
	symbols, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "PF_GOODUSD", string(symbols[0]))
}

func TestLoader_UniverseSymbolsOverrideStillAppliesBlacklist(t *testing.T) {
	cfg := baseConfig()
	cfg.UniverseSymbols = []string{"PF_GOODUSD", "PF_BLOCKED"}
	cfg.BlacklistSymbols["PF_BLOCKED"] = struct{}{}

	loader := NewLoader(&fakeClient{}, cfg)
	symbols, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "PF_GOODUSD", string(symbols[0]))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
