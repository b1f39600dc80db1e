// Package market holds the data model shared across the pipeline and the
// Market State Store, the single owner of all per-symbol live state.
package market

import "time"

// Symbol is an opaque uppercase exchange identifier, unique per exchange and
// immutable for the process lifetime once the universe is loaded.
type Symbol string

// Ticker is the most recent observation for a symbol from either transport.
type Ticker struct {
	Symbol        Symbol
	LastPrice     float64
	Turnover24h   float64
	OpenInterest  float64
	Timestamp     time.Time
}

// Funding is a funding-rate observation, already scaled to percent on
// ingress by the Exchange Client / Streaming Transport.
type Funding struct {
	Symbol          Symbol
	RatePercent     float64
	NextFundingTime int64 // epoch ms
	Timestamp       time.Time
}

// PriceSeries is a bounded, oldest-first close-price history.
type PriceSeries struct {
	Closes []float64
}

const PriceSeriesCapacity = 100

// Append adds a close price, evicting the oldest entry beyond capacity.
func (p *PriceSeries) Append(price float64) {
	p.Closes = append(p.Closes, price)
	if len(p.Closes) > PriceSeriesCapacity {
		p.Closes = p.Closes[len(p.Closes)-PriceSeriesCapacity:]
	}
}

// FundingHistory is a bounded, oldest-first funding-observation history.
type FundingHistory struct {
	Entries []Funding
}

const FundingHistoryCapacity = 10

// Append adds a funding observation, evicting the oldest beyond capacity.
func (h *FundingHistory) Append(f Funding) {
	h.Entries = append(h.Entries, f)
	if len(h.Entries) > FundingHistoryCapacity {
		h.Entries = h.Entries[len(h.Entries)-FundingHistoryCapacity:]
	}
}

// PriceData is a ticker-shaped update as delivered by the Streaming
// Transport's ticker channel.
type PriceData struct {
	Symbol    Symbol
	LastPrice float64
	Timestamp time.Time
}
