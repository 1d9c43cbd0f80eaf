package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/domain"
	"tutor/internal/sqlinline"
)

func TestLedgerPGConsumeSeedsThenConsumes(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	next := now.Add(24 * time.Hour)
	sql := &fakeSQL{row: []any{1, next, true, false}}
	repo := NewLedgerRepository(sql)

	res, err := repo.Consume(context.Background(), domain.ConsumeRequest{
		UserID: "user-1", Now: now, NextReset: &next, Limit: domain.IntPtr(2),
	})
	require.NoError(t, err)
	assert.True(t, res.Admitted)
	assert.Equal(t, 1, res.Count)
	require.NotNil(t, res.ResetAt)
	assert.True(t, res.ResetAt.Equal(next))

	require.Len(t, sql.execs, 1)
	assert.Equal(t, sqlinline.QEnsureUsageLedger, sql.execs[0].query)
	require.Len(t, sql.queries, 1)
	assert.Equal(t, sqlinline.QConsumeUsageLedger, sql.queries[0].query)
	assert.Equal(t, []any{"user-1", now, next, 2}, sql.queries[0].args)
}

func TestLedgerPGConsumePassesNullsForLifetimeUnlimited(t *testing.T) {
	sql := &fakeSQL{row: []any{7, nil, true, false}}
	repo := NewLedgerRepository(sql)
	now := time.Now().UTC()

	res, err := repo.Consume(context.Background(), domain.ConsumeRequest{UserID: "u", Now: now})
	require.NoError(t, err)
	assert.Nil(t, res.ResetAt)
	assert.Equal(t, 7, res.Count)
	assert.Nil(t, sql.queries[0].args[2])
	assert.Nil(t, sql.queries[0].args[3])
}

func TestLedgerPGConsumeSeedFailure(t *testing.T) {
	sql := &fakeSQL{execErr: errors.New("read only transaction")}
	repo := NewLedgerRepository(sql)

	_, err := repo.Consume(context.Background(), domain.ConsumeRequest{UserID: "u", Now: time.Now()})
	require.Error(t, err)
	assert.Empty(t, sql.queries)
}

func TestLedgerPGGetMissingRowIsEmptyLedger(t *testing.T) {
	repo := NewLedgerRepository(&fakeSQL{})
	ledger, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UsageLedger{UserID: "user-1"}, ledger)
}

func TestLedgerPGGet(t *testing.T) {
	reset := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	updated := reset.Add(-time.Hour)
	repo := NewLedgerRepository(&fakeSQL{row: []any{4, reset, updated}})

	ledger, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, ledger.Count)
	assert.Equal(t, reset, *ledger.ResetAt)
	assert.Equal(t, updated, ledger.UpdatedAt)
}

func TestLedgerPGReset(t *testing.T) {
	sql := &fakeSQL{}
	require.NoError(t, NewLedgerRepository(sql).Reset(context.Background(), "user-1"))
	require.Len(t, sql.execs, 1)
	assert.Equal(t, sqlinline.QResetUsageLedger, sql.execs[0].query)
	assert.Equal(t, []any{"user-1"}, sql.execs[0].args)
}
