package rules

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/dynastyquant/fundingpulse/internal/funding"
	"github.com/dynastyquant/fundingpulse/internal/indicators"
	"github.com/dynastyquant/fundingpulse/internal/market"
)

const minPriceSeriesLength = 20

// BuildContext runs an early-exit gate: it requires a known ticker,
// funding observation, and at least 20 close prices; for
// near-zero funding it computes RSI and aborts unless RSI is extreme,
// avoiding a full-context build (and its BTC lookup) for an observation
// that cannot possibly match any rule. ok is false whenever no context
// could be built, in which case Evaluate must not be called.
func BuildContext(store *market.Store, sym market.Symbol, btcSymbol market.Symbol, enableBTC bool) (*SignalContext, bool) {
	ticker := store.GetMarket(sym)
	fund := store.GetFunding(sym)
	if ticker == nil || fund == nil {
		return nil, false
	}

	series := store.GetPriceHistory(sym)
	if len(series.Closes) < minPriceSeriesLength {
		return nil, false
	}

	rsi := indicators.RSI(series.Closes)

	if math.Abs(fund.RatePercent) < 0.01 {
		if rsi == nil || (*rsi <= 75 && *rsi >= 25) {
			return nil, false
		}
	}

	hx := store.GetFundingHistory(sym)
	ctx := &SignalContext{
		Symbol:       sym,
		FundingPct:   fund.RatePercent,
		FundingDelta: funding.Delta(hx),
		RSI:          rsi,
		Momentum:     indicators.Momentum(series.Closes),
		Price:        ticker.LastPrice,
		Volume24h:    ticker.Turnover24h,
	}

	if enableBTC {
		if btcTicker := store.GetMarket(btcSymbol); btcTicker != nil {
			if btcFund := store.GetFunding(btcSymbol); btcFund != nil {
				ctx.BTC = &BTCContext{Price: btcTicker.LastPrice, FundingPct: btcFund.RatePercent}
			}
		}
	}

	return ctx, true
}

// Evaluate applies the ordered rule family to ctx; the first rule that
// matches wins. It is pure and deterministic: the same context always
// yields the same result.
func Evaluate(ctx *SignalContext) *Signal {
	if sig := rsiConfluence(ctx); sig != nil {
		return sig
	}
	if sig := overextensionReversal(ctx); sig != nil {
		return sig
	}
	if sig := trendConfirmation(ctx); sig != nil {
		return sig
	}
	if sig := divergence(ctx); sig != nil {
		return sig
	}
	return nil
}

func rsiConfluence(ctx *SignalContext) *Signal {
	if ctx.RSI == nil {
		return nil
	}
	rsi := *ctx.RSI
	switch {
	case rsi < 30 && ctx.FundingPct < -0.01:
		return finish(ctx, TypeReversal, BiasLong, FundingBiasShortOvercrowded, "RSI Confluence")
	case rsi > 75 && ctx.FundingPct > 0.01:
		return finish(ctx, TypeReversal, BiasShort, FundingBiasLongOvercrowded, "RSI Confluence")
	}
	return nil
}

func overextensionReversal(ctx *SignalContext) *Signal {
	if ctx.RSI == nil || ctx.Momentum == nil {
		return nil
	}
	rsi, mom := *ctx.RSI, *ctx.Momentum
	switch {
	case ctx.FundingPct <= -0.04 && rsi <= 30 && mom < -1.0 && ctx.FundingDelta < 0:
		return finish(ctx, TypeReversal, BiasLong, FundingBiasShortOvercrowded, "Overextension Reversal")
	case ctx.FundingPct >= 0.04 && rsi >= 70 && mom > 1.0 && ctx.FundingDelta > 0:
		return finish(ctx, TypeReversal, BiasShort, FundingBiasLongOvercrowded, "Overextension Reversal")
	}
	return nil
}

func trendConfirmation(ctx *SignalContext) *Signal {
	if ctx.Momentum == nil {
		return nil
	}
	mom := *ctx.Momentum
	switch {
	case ctx.FundingPct >= 0.005 && ctx.FundingPct <= 0.02 && ctx.FundingDelta > 0 && mom > 0:
		return finish(ctx, TypeTrend, BiasLong, FundingBiasLongOvercrowded, "Trend Confirmation")
	case ctx.FundingPct <= -0.005 && ctx.FundingPct >= -0.02 && ctx.FundingDelta < 0 && mom < 0:
		return finish(ctx, TypeTrend, BiasShort, FundingBiasShortOvercrowded, "Trend Confirmation")
	}
	return nil
}

func divergence(ctx *SignalContext) *Signal {
	if ctx.Momentum == nil {
		return nil
	}
	mom := *ctx.Momentum
	switch {
	case mom < -1.0 && ctx.FundingPct > 0.005:
		return finish(ctx, TypeDivergence, BiasLong, FundingBiasShortOvercrowded, "Divergence")
	case mom > 1.0 && ctx.FundingPct < -0.005:
		return finish(ctx, TypeDivergence, BiasShort, FundingBiasLongOvercrowded, "Divergence")
	}
	return nil
}

func finish(ctx *SignalContext, t SignalType, bias Bias, fundingBias, ruleName string) *Signal {
	momClass := MomentumExpansion
	if indicators.IsExhaustion(ctx.RSI, ctx.Momentum) {
		momClass = MomentumExhaustion
	}

	var mom float64
	if ctx.Momentum != nil {
		mom = *ctx.Momentum
	}
	// The side matching momentum's sign reports its actual magnitude; the
	// opposite side reports the fixed 2.0% display floor, since it had no
	// real move to report. See DESIGN.md for the worked example this
	// asymmetric reading is grounded on.
	var up, down float64
	if mom >= 0 {
		up, down = mom, 2.0
	} else {
		up, down = 2.0, -mom
	}

	return &Signal{
		CorrelationID: uuid.New().String()[:8],
		Symbol:        ctx.Symbol,
		Type:          t,
		Bias:          bias,
		FundingPct:    ctx.FundingPct,
		FundingDelta:  ctx.FundingDelta,
		RSI:           ctx.RSI,
		Momentum:      ctx.Momentum,
		BTC:           ctx.BTC,
		Price:         ctx.Price,
		Timeframe:     "1m",
		Context:       fmt.Sprintf("%s matched on %s", ruleName, ctx.Symbol),
		MomentumClass: momClass,
		FundingBias:   fundingBias,
		Movement:      Movement{Up: up, Down: down},
	}
}
