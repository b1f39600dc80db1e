// Package funding derives delta and velocity views over a symbol's funding
// history, held by the Market State Store.
package funding

import "github.com/dynastyquant/fundingpulse/internal/market"

// Delta is the latest minus the previous funding rate observation, 0 if
// fewer than two entries exist.
func Delta(history market.FundingHistory) float64 {
	n := len(history.Entries)
	if n < 2 {
		return 0
	}
	return history.Entries[n-1].RatePercent - history.Entries[n-2].RatePercent
}

// Velocity is delta divided by the elapsed seconds between the latest and
// previous observation, 0 if the elapsed time is non-positive or fewer than
// two entries exist.
func Velocity(history market.FundingHistory) float64 {
	n := len(history.Entries)
	if n < 2 {
		return 0
	}
	latest := history.Entries[n-1]
	prev := history.Entries[n-2]
	elapsed := latest.Timestamp.Sub(prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return (latest.RatePercent - prev.RatePercent) / elapsed
}
