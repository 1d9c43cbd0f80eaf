package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/conversation"
	"tutor/internal/domain"
	"tutor/internal/metrics"
)

type recordingCloser struct {
	cutoffs []time.Time
	ended   int64
	err     error
}

func (r *recordingCloser) EndIdleSessions(_ context.Context, idleSince time.Time) (int64, error) {
	r.cutoffs = append(r.cutoffs, idleSince)
	return r.ended, r.err
}

func TestRunOnceUsesIdleCutoff(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	closer := &recordingCloser{ended: 3}
	s, err := New(Options{
		Sessions: closer,
		IdleTTL:  2 * time.Hour,
		Logger:   zerolog.Nop(),
		Metrics:  metrics.New(),
		Clock:    func() time.Time { return now },
	})
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.Len(t, closer.cutoffs, 1)
	assert.Equal(t, now.Add(-2*time.Hour), closer.cutoffs[0])
}

func TestRunOnceReportsFailure(t *testing.T) {
	closer := &recordingCloser{err: errors.New("db down")}
	s, err := New(Options{Sessions: closer, IdleTTL: time.Hour, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	require.Error(t, err)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{IdleTTL: time.Hour})
	require.Error(t, err)

	_, err = New(Options{Sessions: &recordingCloser{}})
	require.Error(t, err)

	_, err = New(Options{Sessions: &recordingCloser{}, IdleTTL: time.Hour, Schedule: "not a schedule"})
	require.Error(t, err)
}

func TestSweepEndsIdleSessionsInStore(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := conversation.NewStore(conversation.NewMemoryRepository(), zerolog.Nop(), conversation.WithClock(clock))
	ctx := context.Background()

	stale, err := store.ResolveOrCreateSession(ctx, "u1", "", domain.SessionTags{Subject: "math"})
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	fresh, err := store.ResolveOrCreateSession(ctx, "u1", "", domain.SessionTags{Subject: "art"})
	require.NoError(t, err)

	s, err := New(Options{Sessions: store, IdleTTL: time.Hour, Logger: zerolog.Nop(), Clock: clock})
	require.NoError(t, err)
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.GetSession(ctx, "u1", stale.Session.ID)
	require.NoError(t, err)
	assert.True(t, got.Ended())
	got, err = store.GetSession(ctx, "u1", fresh.Session.ID)
	require.NoError(t, err)
	assert.False(t, got.Ended())
}

func TestStartSchedulesNextRun(t *testing.T) {
	s, err := New(Options{Sessions: &recordingCloser{}, IdleTTL: time.Hour, Schedule: "@every 1h", Logger: zerolog.Nop()})
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())
	assert.False(t, s.Next().IsZero())
}
