// Package postgres implements persistence.SignalsRepo and
// persistence.FundingSnapshotsRepo via sqlx + lib/pq, adapted from
// internal/persistence/postgres.tradesRepo: context-bounded
// ExecContext inserts, no retry (persistence here is fire-and-forget,
// unlike the source's duplicate-aware trade ledger).
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dynastyquant/fundingpulse/internal/persistence"
	"github.com/dynastyquant/fundingpulse/internal/rules"
)

type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalsRepo constructs a persistence.SignalsRepo backed by db.
func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalsRepo {
	return &signalsRepo{db: db, timeout: timeout}
}

func (r *signalsRepo) Insert(ctx context.Context, sig *rules.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO signals (correlation_id, symbol, type, bias, funding, delta, rsi, score, price, timeframe, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		sig.CorrelationID, sig.Symbol, sig.Type, sig.Bias, sig.FundingPct, sig.FundingDelta,
		sig.RSI, sig.Score, sig.Price, sig.Timeframe, sig.Context)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}
