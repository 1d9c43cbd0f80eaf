package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanNextReset(t *testing.T) {
	base := time.Date(2024, 1, 31, 8, 30, 0, 0, time.UTC)
	cases := []struct {
		interval ResetInterval
		want     *time.Time
	}{
		{IntervalHourly, ptrTime(time.Date(2024, 1, 31, 9, 30, 0, 0, time.UTC))},
		{IntervalDaily, ptrTime(time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC))},
		{IntervalMonthly, ptrTime(time.Date(2024, 2, 29, 8, 30, 0, 0, time.UTC))},
		{IntervalYearly, ptrTime(time.Date(2025, 1, 31, 8, 30, 0, 0, time.UTC))},
		{IntervalLifetime, nil},
	}
	for _, tc := range cases {
		t.Run(string(tc.interval), func(t *testing.T) {
			got := Plan{ID: "p", Interval: tc.interval}.NextReset(base)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, got.Equal(*tc.want), "got %s want %s", got, tc.want)
		})
	}
}

func TestPlanNextResetYearlyLeapDay(t *testing.T) {
	leap := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	got := Plan{ID: "y", Interval: IntervalYearly}.NextReset(leap)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), *got)
}

func TestPlanValidate(t *testing.T) {
	assert.NoError(t, Plan{ID: "free", Limit: IntPtr(10), Interval: IntervalDaily}.Validate())
	assert.Error(t, Plan{Interval: IntervalDaily}.Validate())
	assert.Error(t, Plan{ID: "x", Interval: "weekly"}.Validate())
	assert.Error(t, Plan{ID: "x", Limit: IntPtr(-1), Interval: IntervalDaily}.Validate())
}

func TestErrorMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", QuotaExceededError("daily limit reached"))
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
	assert.False(t, errors.Is(err, ErrAccessDenied))
	assert.Equal(t, KindQuotaExceeded, KindOf(err))

	assert.Equal(t, KindConfiguration, KindOf(fmt.Errorf("lookup: %w", ErrUnsupportedPlan)))
	assert.Equal(t, KindNotFound, KindOf(ErrNotFound))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	unavailable := BackendUnavailableError("stream setup failed", RetryModeNonStreaming, errors.New("dial"))
	assert.True(t, unavailable.Retryable)
	assert.Equal(t, RetryModeNonStreaming, AsError(unavailable).RetryMode)
}

func ptrTime(t time.Time) *time.Time { return &t }
