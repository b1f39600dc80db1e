// Package persistence defines the optional, fire-and-forget persistence
// capabilities and their Postgres implementation.
package persistence

import (
	"context"
	"time"

	"github.com/dynastyquant/fundingpulse/internal/rules"
)

// FundingSnapshot mirrors a funding observation plus the indicators
// computed at observation time. It carries no invariants beyond the
// funding_snapshots table's own.
type FundingSnapshot struct {
	Symbol    string
	Funding   float64
	Price     float64
	Volume24h float64
	RSI       *float64
	CreatedAt time.Time
}

// SignalsRepo persists accepted signals.
type SignalsRepo interface {
	Insert(ctx context.Context, sig *rules.Signal) error
}

// FundingSnapshotsRepo persists funding observations.
type FundingSnapshotsRepo interface {
	Insert(ctx context.Context, snap FundingSnapshot) error
}

// Store groups both optional repos. Every call site handles both "present
// and healthy" and "absent" identically: a best-effort side effect that
// never blocks or fails the dispatch path.
type Store struct {
	Signals          SignalsRepo
	FundingSnapshots FundingSnapshotsRepo
}
