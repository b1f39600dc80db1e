// Package universe performs the one-shot construction of the monitored
// symbol set at startup.
package universe

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dynastyquant/fundingpulse/internal/config"
	"github.com/dynastyquant/fundingpulse/internal/exchange"
	"github.com/dynastyquant/fundingpulse/internal/market"
)

const tradingStatus = "Trading"

// Loader produces the monitored symbol set by intersecting listing
// metadata with quality thresholds and a blacklist, following the
// filter-and-reject-count shape of internal/universe.Manager
// (buildUniverseFromConfig / GetSymbols), simplified to a single-exchange,
// single-pass procedure.
type Loader struct {
	client exchange.Client
	cfg    *config.Config
}

// NewLoader constructs a Loader.
func NewLoader(client exchange.Client, cfg *config.Config) *Loader {
	return &Loader{client: client, cfg: cfg}
}

// Load filters instruments by trading status, liquidity, and price, then
// excludes the configured blacklist, and returns the accepted symbol set.
// Counts per rejection reason are logged. If UNIVERSE_SYMBOLS is set, the
// override bypasses turnover/OI/price filters but the blacklist still
// applies.
func (l *Loader) Load(ctx context.Context) ([]market.Symbol, error) {
	if len(l.cfg.UniverseSymbols) > 0 {
		out := make([]market.Symbol, 0, len(l.cfg.UniverseSymbols))
		for _, sym := range l.cfg.UniverseSymbols {
			if l.cfg.IsBlacklisted(sym) {
				continue
			}
			out = append(out, market.Symbol(sym))
		}
		log.Info().Int("count", len(out)).Msg("universe loaded from UNIVERSE_SYMBOLS override")
		return out, nil
	}

	instruments, err := l.client.GetInstruments(ctx)
	if err != nil {
		// Instrument fetch failure is fatal and propagates.
		return nil, err
	}

	tradable := make(map[string]struct{}, len(instruments))
	for _, inst := range instruments {
		if inst.Status == tradingStatus {
			tradable[inst.Symbol] = struct{}{}
		}
	}

	tickers, err := l.client.GetTickers(ctx)
	degraded := false
	if err != nil {
		log.Warn().Err(err).Msg("bulk ticker fetch failed, degrading to unfiltered instrument list")
		degraded = true
	}

	if degraded {
		out := make([]market.Symbol, 0, len(tradable))
		for sym := range tradable {
			if l.cfg.IsBlacklisted(sym) {
				continue
			}
			out = append(out, market.Symbol(sym))
		}
		return out, nil
	}

	var accepted []market.Symbol
	rejected := map[string]int{
		"not_tradable": 0, "volume": 0, "open_interest": 0, "price": 0,
		"no_funding": 0, "blacklist": 0,
	}

	for _, t := range tickers {
		if _, ok := tradable[t.Symbol]; !ok {
			rejected["not_tradable"]++
			continue
		}
		if t.Turnover24h < l.cfg.MinVolume24hUSDT {
			rejected["volume"]++
			continue
		}

		oi := t.OpenInterestValue
		if oi == 0 {
			oi = t.OpenInterestCount * 1000
		}
		if oi < l.cfg.MinOpenInterestUSDT {
			rejected["open_interest"]++
			continue
		}

		if t.LastPrice < l.cfg.MinPriceUSDT || t.LastPrice > l.cfg.MaxPriceUSDT {
			rejected["price"]++
			continue
		}

		if !t.HasFundingField {
			rejected["no_funding"]++
			continue
		}

		if l.cfg.IsBlacklisted(t.Symbol) {
			rejected["blacklist"]++
			continue
		}

		accepted = append(accepted, market.Symbol(strings.ToUpper(t.Symbol)))
	}

	log.Info().
		Int("accepted", len(accepted)).
		Int("rejected_not_tradable", rejected["not_tradable"]).
		Int("rejected_volume", rejected["volume"]).
		Int("rejected_open_interest", rejected["open_interest"]).
		Int("rejected_price", rejected["price"]).
		Int("rejected_no_funding", rejected["no_funding"]).
		Int("rejected_blacklist", rejected["blacklist"]).
		Msg("universe loaded")

	return accepted, nil
}
