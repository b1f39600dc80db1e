package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynastyquant/fundingpulse/internal/rules"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestSignalsRepo_InsertExecutesExpectedQuery(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	rsi := 25.0
	sig := &rules.Signal{
		CorrelationID: "abc12345",
		Symbol:        "BTCUSDT",
		Type:          rules.TypeReversal,
		Bias:          rules.BiasLong,
		FundingPct:    -0.02,
		FundingDelta:  -0.01,
		RSI:           &rsi,
		Score:         82,
		Price:         65000,
		Timeframe:     "1m",
		Context:       "RSI Confluence matched on BTCUSDT",
	}

	mock.ExpectExec("INSERT INTO signals").
		WithArgs(sig.CorrelationID, sig.Symbol, sig.Type, sig.Bias, sig.FundingPct, sig.FundingDelta,
			sig.RSI, sig.Score, sig.Price, sig.Timeframe, sig.Context).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewSignalsRepo(db, time.Second)
	err := repo.Insert(context.Background(), sig)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalsRepo_InsertReturnsWrappedError(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO signals").WillReturnError(sqlmock.ErrCancelled)

	repo := NewSignalsRepo(db, time.Second)
	err := repo.Insert(context.Background(), &rules.Signal{Symbol: "BTCUSDT"})
	assert.Error(t, err)
}
