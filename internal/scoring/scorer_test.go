package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dynastyquant/fundingpulse/internal/rules"
)

func f(v float64) *float64 { return &v }

func TestScore_BoundsAreZeroToHundred(t *testing.T) {
	sig := &rules.Signal{FundingPct: 0.05, FundingDelta: 0.02, RSI: f(80), Momentum: f(3)}
	result := Score(sig, 75)
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 100.0)
}

func TestScore_ExtremeFundingWithConfirmingSignalsMeetsThreshold(t *testing.T) {
	sig := &rules.Signal{
		FundingPct:   0.045,
		FundingDelta: 0.012,
		RSI:          f(75),
		Momentum:     f(2.5),
		BTC:          &rules.BTCContext{FundingPct: 0.025},
	}
	result := Score(sig, 75)
	assert.True(t, result.MeetsThreshold)
}

func TestScore_WeakSignalMissesThreshold(t *testing.T) {
	sig := &rules.Signal{
		FundingPct:   0.003,
		FundingDelta: 0,
		RSI:          f(52),
		Momentum:     f(0.2),
	}
	result := Score(sig, 75)
	assert.False(t, result.MeetsThreshold)
}

func TestScore_NilRSIOrMomentumFallsBackToNeutralSubscore(t *testing.T) {
	sig := &rules.Signal{FundingPct: 0.02, FundingDelta: 0.005}
	result := Score(sig, 75)
	assert.Greater(t, result.Score, 0.0)
}

func TestScore_NilBTCContextFallsBackToNeutral(t *testing.T) {
	sig := &rules.Signal{FundingPct: 0.02, FundingDelta: 0.005, RSI: f(72), Momentum: f(1.2)}
	withoutBTC := Score(sig, 75).Score

	sig.BTC = &rules.BTCContext{FundingPct: 0.03}
	withBTC := Score(sig, 75).Score

	assert.Greater(t, withBTC, withoutBTC)
}

// The three worked scenarios each print a final total that does not
// reproduce their own listed per-factor products (see DESIGN.md). These
// tests pin Score's actual output against the component-design table
// instead, alongside the qualitative dispatched/not-dispatched verdict the
// worked examples agree on.

func TestScore_ShortRSIConfluenceScenario_RecomputedTotalMissesThreshold(t *testing.T) {
	sig := &rules.Signal{FundingPct: 0.015, FundingDelta: 0.001, RSI: f(78), Momentum: f(1.2)}
	result := Score(sig, 75)
	assert.Equal(t, 66.0, result.Score)
	assert.False(t, result.MeetsThreshold)
}

func TestScore_LongOverextensionScenario_RecomputedTotalMeetsThreshold(t *testing.T) {
	sig := &rules.Signal{FundingPct: -0.05, FundingDelta: -0.002, RSI: f(25), Momentum: f(-1.5)}
	result := Score(sig, 75)
	assert.Equal(t, 85.0, result.Score)
	assert.True(t, result.MeetsThreshold)
}

func TestScore_TrendLongScenario_RecomputedTotalMissesThreshold(t *testing.T) {
	sig := &rules.Signal{FundingPct: 0.012, FundingDelta: 0.001, RSI: f(55), Momentum: f(0.4)}
	result := Score(sig, 75)
	assert.Equal(t, 46.0, result.Score)
	assert.False(t, result.MeetsThreshold)
}

func TestFundingExtremityBrackets(t *testing.T) {
	cases := []struct {
		pct  float64
		want float64
	}{
		{0.001, 0}, {0.003, 15}, {0.007, 30}, {0.012, 45},
		{0.018, 60}, {0.025, 75}, {0.035, 90}, {0.05, 100},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, fundingExtremity(c.pct), "pct=%v", c.pct)
	}
}
