package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageLedgerConsumeDeniesAtLimit(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	daily := Plan{ID: "free", Limit: IntPtr(2), Interval: IntervalDaily}
	req := ConsumeRequest{UserID: "u1", Now: now, NextReset: daily.NextReset(now), Limit: daily.Limit}

	ledger := UsageLedger{UserID: "u1"}
	var res ConsumeResult
	var outcomes []bool
	for i := 0; i < 3; i++ {
		ledger, res = ledger.Consume(req)
		outcomes = append(outcomes, res.Admitted)
	}

	assert.Equal(t, []bool{true, true, false}, outcomes)
	assert.Equal(t, 2, ledger.Count)
	require.NotNil(t, ledger.ResetAt)
	assert.True(t, ledger.ResetAt.Equal(now.Add(24*time.Hour)))
}

func TestUsageLedgerConsumeRollsExpiredWindow(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	daily := Plan{ID: "free", Limit: IntPtr(2), Interval: IntervalDaily}
	ledger := UsageLedger{UserID: "u1", Count: 2, ResetAt: &past}

	next, res := ledger.Consume(ConsumeRequest{Now: now, NextReset: daily.NextReset(now), Limit: daily.Limit})

	assert.True(t, res.Admitted)
	assert.True(t, res.Rolled)
	assert.Equal(t, 1, next.Count)
	require.NotNil(t, next.ResetAt)
	assert.True(t, next.ResetAt.Equal(now.AddDate(0, 0, 1)))
}

func TestUsageLedgerConsumeDenialDoesNotMutate(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	updated := now.Add(-time.Minute)
	ledger := UsageLedger{UserID: "u1", Count: 3, ResetAt: &future, UpdatedAt: updated}

	next, res := ledger.Consume(ConsumeRequest{Now: now, NextReset: &future, Limit: IntPtr(3)})

	assert.False(t, res.Admitted)
	assert.Equal(t, ledger, next)
}

func TestUsageLedgerConsumeZeroLimitNeverInitialisesReset(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	next := now.Add(time.Hour)
	ledger := UsageLedger{UserID: "u1"}

	out, res := ledger.Consume(ConsumeRequest{Now: now, NextReset: &next, Limit: IntPtr(0)})

	assert.False(t, res.Admitted)
	assert.Nil(t, out.ResetAt)
	assert.Zero(t, out.Count)
}

func TestUsageLedgerConsumeLifetimeNeverResets(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	lifetime := Plan{ID: "trial", Limit: nil, Interval: IntervalLifetime}
	ledger := UsageLedger{UserID: "u1"}

	for i := 0; i < 50; i++ {
		var res ConsumeResult
		ledger, res = ledger.Consume(ConsumeRequest{Now: now.Add(time.Duration(i) * 24 * time.Hour), NextReset: lifetime.NextReset(now), Limit: lifetime.Limit})
		require.True(t, res.Admitted)
		require.False(t, res.Rolled)
	}
	assert.Equal(t, 50, ledger.Count)
	assert.Nil(t, ledger.ResetAt)
}

func TestUsageLedgerEffective(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	ledger := UsageLedger{Count: 5, ResetAt: &past}

	assert.Equal(t, 0, ledger.Effective(now, IntervalDaily).Count)
	assert.Equal(t, 5, ledger.Effective(now, IntervalLifetime).Count)
	assert.Equal(t, 5, ledger.Effective(past.Add(-time.Second), IntervalDaily).Count)
}

func TestAdmissionRemaining(t *testing.T) {
	assert.Nil(t, Admission{Count: 3}.Remaining())
	assert.Equal(t, 2, *Admission{Count: 3, Limit: IntPtr(5)}.Remaining())
	assert.Equal(t, 0, *Admission{Count: 7, Limit: IntPtr(5)}.Remaining())
}
