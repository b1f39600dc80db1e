package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dynastyquant/fundingpulse/internal/persistence"
)

type fundingSnapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFundingSnapshotsRepo constructs a persistence.FundingSnapshotsRepo
// backed by db.
func NewFundingSnapshotsRepo(db *sqlx.DB, timeout time.Duration) persistence.FundingSnapshotsRepo {
	return &fundingSnapshotsRepo{db: db, timeout: timeout}
}

func (r *fundingSnapshotsRepo) Insert(ctx context.Context, snap persistence.FundingSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO funding_snapshots (symbol, funding, price, volume_24h, rsi)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, snap.Symbol, snap.Funding, snap.Price, snap.Volume24h, snap.RSI)
	if err != nil {
		return fmt.Errorf("insert funding snapshot: %w", err)
	}
	return nil
}
