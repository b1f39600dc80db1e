package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatSeries(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestRSI_InsufficientData(t *testing.T) {
	assert.Nil(t, RSI(flatSeries(10, 100)))
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	rsi := RSI(series)
	require.NotNil(t, rsi)
	assert.Equal(t, 100.0, *rsi)
}

func TestRSI_InRangeForMixedSeries(t *testing.T) {
	series := []float64{
		44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28,
	}
	rsi := RSI(series)
	require.NotNil(t, rsi)
	assert.GreaterOrEqual(t, *rsi, 0.0)
	assert.LessOrEqual(t, *rsi, 100.0)
}

func TestMomentum_InsufficientData(t *testing.T) {
	assert.Nil(t, Momentum(flatSeries(5, 100)))
}

func TestMomentum_PercentChange(t *testing.T) {
	series := flatSeries(11, 100)
	series[10] = 110
	mom := Momentum(series)
	require.NotNil(t, mom)
	assert.InDelta(t, 10.0, *mom, 0.001)
}

func TestIsExhaustion(t *testing.T) {
	rsi, mom := 75.0, 2.5
	assert.True(t, IsExhaustion(&rsi, &mom))

	lowMom := 1.0
	assert.False(t, IsExhaustion(&rsi, &lowMom))

	assert.False(t, IsExhaustion(nil, &mom))
}

func TestIsExpansion(t *testing.T) {
	rsi, mom := 50.0, 2.0
	assert.True(t, IsExpansion(&rsi, &mom))

	extremeRSI := 80.0
	assert.False(t, IsExpansion(&extremeRSI, &mom))
}
