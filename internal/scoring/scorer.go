// Package scoring implements the weighted five-factor rubric that turns a
// Signal into a 0-100 score and a meets-threshold verdict. Like the
// Indicator Engine, it is pure: no synchronization required.
package scoring

import (
	"math"

	"github.com/dynastyquant/fundingpulse/internal/rules"
)

const (
	weightFundingExtremity = 40
	weightFundingDelta     = 20
	weightRSIMomentum      = 20
	weightVolumeSpike      = 10
	weightBTCContext       = 10
)

// Result is the Scorer's output for a candidate Signal.
type Result struct {
	Score          float64
	MeetsThreshold bool
}

// Score computes the weighted composite score for sig and reports whether
// it clears threshold.
func Score(sig *rules.Signal, threshold float64) Result {
	sub := fundingExtremity(sig.FundingPct)*weightFundingExtremity +
		fundingDelta(sig.FundingDelta, sig.FundingPct)*weightFundingDelta +
		rsiMomentum(sig.RSI, sig.Momentum)*weightRSIMomentum +
		volumeSpike()*weightVolumeSpike +
		btcContext(sig.BTC)*weightBTCContext

	final := round2(sub / 100)
	return Result{Score: final, MeetsThreshold: final >= threshold}
}

func fundingExtremity(fundingPct float64) float64 {
	abs := math.Abs(fundingPct)
	switch {
	case abs >= 0.04:
		return 100
	case abs >= 0.03:
		return 90
	case abs >= 0.02:
		return 75
	case abs >= 0.015:
		return 60
	case abs >= 0.01:
		return 45
	case abs >= 0.005:
		return 30
	case abs >= 0.002:
		return 15
	default:
		return 0
	}
}

func fundingDelta(delta, fundingPct float64) float64 {
	if delta == 0 {
		return 50
	}
	abs := math.Abs(delta)
	switch {
	case abs >= 0.01:
		return 100
	case abs >= 0.005:
		return 85
	case abs >= 0.002:
		return 70
	case abs >= 0.001:
		return 55
	}
	if sameSign(delta, fundingPct) {
		return math.Min(60+abs*10000, 100)
	}
	return 40
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func rsiMomentum(rsi, momentum *float64) float64 {
	if rsi == nil || momentum == nil {
		return 50
	}
	r, m := *rsi, *momentum
	switch {
	case (r >= 70 && m > 0) || (r <= 30 && m < 0):
		return 100
	case math.Abs(m) > 2 && r >= 40 && r <= 60:
		return 85
	case (r >= 60 && m > 1) || (r <= 40 && m < -1):
		return 70
	case math.Abs(m) > 0.5:
		return 50
	default:
		return 30
	}
}

// volumeSpike is a constant placeholder sub-score: the original scoring
// model computes this from a volume-spike signal this pipeline does not
// model, so it contributes a fixed value of 60 instead of a guess.
func volumeSpike() float64 {
	return 60
}

func btcContext(btc *rules.BTCContext) float64 {
	if btc == nil {
		return 50
	}
	abs := math.Abs(btc.FundingPct)
	switch {
	case abs >= 0.02:
		return 80
	case abs >= 0.01:
		return 65
	case abs >= 0.005:
		return 55
	default:
		return 50
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
