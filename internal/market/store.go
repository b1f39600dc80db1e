package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dynastyquant/fundingpulse/internal/exchange"
)

// shardCount follows the per-entity RWMutex discipline
// (internal/universe/manager.go, internal/providers/kraken/websocket.go):
// the symbol map is split across a fixed number of shards, each with its
// own lock over its part of the map, and each symbol's state carries its
// own RWMutex guarding its ticker, funding and series.
const shardCount = 64

type symbolState struct {
	mu      sync.RWMutex
	ticker  *Ticker
	funding *Funding
	prices  PriceSeries
	fundHx  FundingHistory
}

type shard struct {
	mu      sync.RWMutex
	symbols map[Symbol]*symbolState
}

// Store is the authoritative in-memory state per symbol. It is the only
// component that mutates Ticker/Funding/PriceSeries/FundingHistory; every
// other component reads through its accessors.
type Store struct {
	shards [shardCount]*shard
	client exchange.Client
}

// NewStore constructs an empty store backed by client for symbol
// initialization candle seeding.
func NewStore(client exchange.Client) *Store {
	s := &Store{client: client}
	for i := range s.shards {
		s.shards[i] = &shard{symbols: make(map[Symbol]*symbolState)}
	}
	return s
}

func shardIndex(sym Symbol) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sym))
	return int(h.Sum32() % shardCount)
}

func (s *Store) shardFor(sym Symbol) *shard {
	return s.shards[shardIndex(sym)]
}

func (s *Store) stateFor(sym Symbol, create bool) *symbolState {
	sh := s.shardFor(sym)
	sh.mu.RLock()
	st, ok := sh.symbols[sym]
	sh.mu.RUnlock()
	if ok || !create {
		return st
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if st, ok = sh.symbols[sym]; ok {
		return st
	}
	st = &symbolState{}
	sh.symbols[sym] = st
	return st
}

// InitSymbol seeds PriceSeries from a 100-point 1-minute candle fetch and
// caches the first ticker/funding snapshot.
func (s *Store) InitSymbol(ctx context.Context, sym Symbol, seed Ticker, funding *Funding) error {
	closes, err := s.client.GetKlines(ctx, string(sym), exchange.Interval1m, PriceSeriesCapacity)
	if err != nil {
		return fmt.Errorf("init symbol %s: %w", sym, err)
	}

	st := s.stateFor(sym, true)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.prices = PriceSeries{}
	for _, c := range closes {
		st.prices.Append(c)
	}
	tk := seed
	st.ticker = &tk
	if funding != nil {
		f := *funding
		st.funding = &f
		st.fundHx.Append(f)
	}
	return nil
}

// IngestTicker updates the ticker cache and appends to the price series,
// evicting to capacity. Readers never observe a partial write: the whole
// state mutation happens under one write lock.
func (s *Store) IngestTicker(p PriceData) {
	st := s.stateFor(p.Symbol, true)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.ticker == nil {
		st.ticker = &Ticker{Symbol: p.Symbol}
	}
	st.ticker.LastPrice = p.LastPrice
	st.ticker.Timestamp = p.Timestamp
	st.prices.Append(p.LastPrice)
}

// IngestTickerFull replaces the full ticker snapshot (turnover/OI in
// addition to price) and appends its price to the series. Nothing in the
// pipeline calls it at present.
func (s *Store) IngestTickerFull(t Ticker) {
	st := s.stateFor(t.Symbol, true)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.ticker = &t
	st.prices.Append(t.LastPrice)
}

// IngestFunding updates the funding cache and appends to funding history.
func (s *Store) IngestFunding(f Funding) {
	st := s.stateFor(f.Symbol, true)
	st.mu.Lock()
	defer st.mu.Unlock()

	fc := f
	st.funding = &fc
	st.fundHx.Append(f)
}

// GetMarket returns the latest ticker for symbol, or nil if unknown. Getters
// never create state implicitly.
func (s *Store) GetMarket(sym Symbol) *Ticker {
	st := s.stateFor(sym, false)
	if st == nil {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.ticker == nil {
		return nil
	}
	t := *st.ticker
	return &t
}

// GetFunding returns the latest funding observation for symbol, or nil.
func (s *Store) GetFunding(sym Symbol) *Funding {
	st := s.stateFor(sym, false)
	if st == nil {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.funding == nil {
		return nil
	}
	f := *st.funding
	return &f
}

// GetPriceHistory returns a copy of the price series for symbol.
func (s *Store) GetPriceHistory(sym Symbol) PriceSeries {
	st := s.stateFor(sym, false)
	if st == nil {
		return PriceSeries{}
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	closes := make([]float64, len(st.prices.Closes))
	copy(closes, st.prices.Closes)
	return PriceSeries{Closes: closes}
}

// GetFundingHistory returns a copy of the funding history for symbol.
func (s *Store) GetFundingHistory(sym Symbol) FundingHistory {
	st := s.stateFor(sym, false)
	if st == nil {
		return FundingHistory{}
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	entries := make([]Funding, len(st.fundHx.Entries))
	copy(entries, st.fundHx.Entries)
	return FundingHistory{Entries: entries}
}

// GetAllSymbols returns every symbol currently tracked by the store.
func (s *Store) GetAllSymbols() []Symbol {
	var out []Symbol
	for _, sh := range s.shards {
		sh.mu.RLock()
		for sym := range sh.symbols {
			out = append(out, sym)
		}
		sh.mu.RUnlock()
	}
	return out
}

// InitSymbolsBatched seeds a set of symbols in batches of 20 with 300ms
// inter-batch spacing, matching the startup request-rate discipline of a
// single-shot bulk seed.
func (s *Store) InitSymbolsBatched(ctx context.Context, symbols []Symbol, seeds map[Symbol]Ticker, fundings map[Symbol]*Funding) {
	const batchSize = 20
	const interBatchDelay = 300 * time.Millisecond

	for i := 0; i < len(symbols); i += batchSize {
		end := i + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]

		var wg sync.WaitGroup
		for _, sym := range batch {
			sym := sym
			wg.Add(1)
			go func() {
				defer wg.Done()
				seed := seeds[sym]
				if err := s.InitSymbol(ctx, sym, seed, fundings[sym]); err != nil {
					log.Warn().Err(err).Str("symbol", string(sym)).Msg("symbol init failed")
				}
			}()
		}
		wg.Wait()

		if end < len(symbols) {
			time.Sleep(interBatchDelay)
		}
	}
}
