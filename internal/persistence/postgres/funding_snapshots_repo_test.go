package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynastyquant/fundingpulse/internal/persistence"
)

func TestFundingSnapshotsRepo_InsertExecutesExpectedQuery(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	rsi := 55.0
	snap := persistence.FundingSnapshot{
		Symbol:    "ETHUSDT",
		Funding:   0.01,
		Price:     3200,
		Volume24h: 5_000_000,
		RSI:       &rsi,
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO funding_snapshots").
		WithArgs(snap.Symbol, snap.Funding, snap.Price, snap.Volume24h, snap.RSI).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewFundingSnapshotsRepo(db, time.Second)
	err := repo.Insert(context.Background(), snap)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFundingSnapshotsRepo_InsertReturnsWrappedError(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO funding_snapshots").WillReturnError(sqlmock.ErrCancelled)

	repo := NewFundingSnapshotsRepo(db, time.Second)
	err := repo.Insert(context.Background(), persistence.FundingSnapshot{Symbol: "ETHUSDT"})
	assert.Error(t, err)
}
