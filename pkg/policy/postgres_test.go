package policy

import (
	"context"
	"math/big"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilcash/pullauth/pkg/contracts"
)

func TestPostgresStorageGetPolicy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db)
	ctx := context.Background()
	principal := contracts.Address{0xA1}

	rows := sqlmock.NewRows([]string{"principal", "max_per_tx", "daily_limit", "enabled", "updated_at"}).
		AddRow(principal.Hex(), "100", "250", true, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT principal, max_per_tx, daily_limit, enabled, updated_at FROM policies WHERE principal = $1")).
		WithArgs(principal.Hex()).
		WillReturnRows(rows)

	p, err := store.GetPolicy(ctx, principal)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, principal, p.Principal)
	assert.Equal(t, int64(100), p.MaxPerTx.Int64())
	assert.Equal(t, int64(250), p.DailyLimit.Int64())
	assert.True(t, p.Enabled)

	// Not found is nil, not an error.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT principal, max_per_tx, daily_limit, enabled, updated_at FROM policies WHERE principal = $1")).
		WithArgs(principal.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"principal", "max_per_tx", "daily_limit", "enabled", "updated_at"}))

	p, err = store.GetPolicy(ctx, principal)
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageSetPolicy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db)
	principal := contracts.Address{0xA1}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO policies")).
		WithArgs(principal.Hex(), "100", "250", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.SetPolicy(context.Background(), &contracts.Policy{
		Principal:  principal,
		MaxPerTx:   big.NewInt(100),
		DailyLimit: big.NewInt(250),
		Enabled:    true,
		UpdatedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageUsageRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db)
	ctx := context.Background()
	principal := contracts.Address{0xB2}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO usage")).
		WithArgs(principal.Hex(), "2026-08-26", "200").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.SetUsage(ctx, &contracts.Usage{
		Principal: principal,
		Day:       "2026-08-26",
		Spent:     big.NewInt(200),
	})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"principal", "day", "spent"}).
		AddRow(principal.Hex(), "2026-08-26", "200")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT principal, day, spent FROM usage WHERE principal = $1")).
		WithArgs(principal.Hex()).
		WillReturnRows(rows)

	u, err := store.GetUsage(ctx, principal)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "2026-08-26", u.Day)
	assert.Equal(t, int64(200), u.Spent.Int64())

	assert.NoError(t, mock.ExpectationsWereMet())
}
