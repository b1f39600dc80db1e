package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynastyquant/fundingpulse/internal/exchange"
)

type fakeClient struct {
	closes []float64
	err    error
}

func (f *fakeClient) GetInstruments(ctx context.Context) ([]exchange.Instrument, error) {
	return nil, nil
}
func (f *fakeClient) GetTickers(ctx context.Context) ([]exchange.TickerSnapshot, error) {
	return nil, nil
}
func (f *fakeClient) GetTicker(ctx context.Context, symbol string) (exchange.TickerSnapshot, error) {
	return exchange.TickerSnapshot{}, nil
}
func (f *fakeClient) GetKlines(ctx context.Context, symbol string, interval exchange.Interval, limit int) ([]float64, error) {
	return f.closes, f.err
}

func TestStore_InitSymbolAndGet(t *testing.T) {
	client := &fakeClient{closes: []float64{100, 101, 102}}
	store := NewStore(client)

	seed := Ticker{Symbol: "BTCUSDT", LastPrice: 102}
	fund := &Funding{Symbol: "BTCUSDT", RatePercent: 0.01}

	err := store.InitSymbol(context.Background(), "BTCUSDT", seed, fund)
	require.NoError(t, err)

	tk := store.GetMarket("BTCUSDT")
	require.NotNil(t, tk)
	assert.Equal(t, 102.0, tk.LastPrice)

	series := store.GetPriceHistory("BTCUSDT")
	assert.Equal(t, []float64{100, 101, 102}, series.Closes)

	f := store.GetFunding("BTCUSDT")
	require.NotNil(t, f)
	assert.Equal(t, 0.01, f.RatePercent)
}

func TestStore_GetMarket_UnknownSymbolIsNil(t *testing.T) {
	store := NewStore(&fakeClient{})
	assert.Nil(t, store.GetMarket("NOPE"))
	assert.Nil(t, store.GetFunding("NOPE"))
}

func TestStore_IngestTickerAppendsAndCaps(t *testing.T) {
	store := NewStore(&fakeClient{})
	for i := 0; i < PriceSeriesCapacity+10; i++ {
		store.IngestTicker(PriceData{Symbol: "ETHUSDT", LastPrice: float64(i), Timestamp: time.Now()})
	}
	series := store.GetPriceHistory("ETHUSDT")
	assert.Len(t, series.Closes, PriceSeriesCapacity)
	assert.Equal(t, float64(PriceSeriesCapacity+9), series.Closes[len(series.Closes)-1])
}

func TestStore_IngestFundingAppendsAndCaps(t *testing.T) {
	store := NewStore(&fakeClient{})
	for i := 0; i < FundingHistoryCapacity+5; i++ {
		store.IngestFunding(Funding{Symbol: "ETHUSDT", RatePercent: float64(i), Timestamp: time.Now()})
	}
	hx := store.GetFundingHistory("ETHUSDT")
	assert.Len(t, hx.Entries, FundingHistoryCapacity)

	f := store.GetFunding("ETHUSDT")
	require.NotNil(t, f)
	assert.Equal(t, float64(FundingHistoryCapacity+4), f.RatePercent)
}

func TestStore_InitSymbolsBatched(t *testing.T) {
	store := NewStore(&fakeClient{closes: []float64{1, 2, 3}})
	symbols := []Symbol{"A", "B", "C"}
	store.InitSymbolsBatched(context.Background(), symbols, map[Symbol]Ticker{}, map[Symbol]*Funding{})

	for _, sym := range symbols {
		assert.NotNil(t, store.GetMarket(sym))
	}
	assert.ElementsMatch(t, symbols, store.GetAllSymbols())
}
