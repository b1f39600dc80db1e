// Package rules implements the ordered rule family that turns a per-symbol
// SignalContext into at most one candidate Signal.
package rules

import "github.com/dynastyquant/fundingpulse/internal/market"

// SignalType classifies which rule produced a Signal.
type SignalType string

const (
	TypeReversal   SignalType = "REVERSAL"
	TypeTrend      SignalType = "TREND"
	TypeDivergence SignalType = "DIVERGENCE"
)

// Bias is the directional call of a Signal.
type Bias string

const (
	BiasLong  Bias = "LONG"
	BiasShort Bias = "SHORT"
)

// MomentumClass is the qualitative momentum label attached to a Signal.
type MomentumClass string

const (
	MomentumExhaustion MomentumClass = "Exhaustion"
	MomentumExpansion  MomentumClass = "Expansion"
)

const (
	FundingBiasLongOvercrowded  = "LONG Overcrowded"
	FundingBiasShortOvercrowded = "SHORT Overcrowded"
)

// BTCContext carries BTC's own price and funding rate for cross-market
// context, populated unless disabled by configuration.
type BTCContext struct {
	Price       float64
	FundingPct  float64
}

// SignalContext is the ephemeral, per-evaluation input to the rule family.
// It lives only during rule evaluation and is never persisted.
type SignalContext struct {
	Symbol        market.Symbol
	FundingPct    float64
	FundingDelta  float64
	RSI           *float64
	Momentum      *float64
	Price         float64
	Volume24h     float64
	BTC           *BTCContext
}

// Movement is the display-only up/down percentage pair derived from
// momentum.
type Movement struct {
	Up   float64
	Down float64
}

// Signal is the output of a single rule match. It carries the raw
// momentum and BTC context alongside the display-only derived fields
// (MomentumClass, Movement) so the Scorer can apply its weighted rubric
// without re-deriving them.
type Signal struct {
	CorrelationID string
	Symbol        market.Symbol
	Type          SignalType
	Bias          Bias
	FundingPct    float64
	FundingDelta  float64
	RSI           *float64
	Momentum      *float64
	BTC           *BTCContext
	Score         float64
	Price         float64
	Timeframe     string
	Context       string
	MomentumClass MomentumClass
	FundingBias   string
	Movement      Movement
}
