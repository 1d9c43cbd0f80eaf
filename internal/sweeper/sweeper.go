package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tutor/internal/metrics"
)

// SessionCloser ends sessions idle since a cutoff.
type SessionCloser interface {
	EndIdleSessions(ctx context.Context, idleSince time.Time) (int64, error)
}

type Options struct {
	Sessions SessionCloser
	IdleTTL  time.Duration
	Schedule string
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Clock    func() time.Time
	// RunTimeout bounds a single sweep.
	RunTimeout time.Duration
}

// Sweeper periodically closes sessions that have seen no activity for IdleTTL.
type Sweeper struct {
	cron    *cron.Cron
	opts    Options
	entryID cron.EntryID
}

func New(opts Options) (*Sweeper, error) {
	if opts.Sessions == nil {
		return nil, errors.New("sweeper: session closer is required")
	}
	if opts.IdleTTL <= 0 {
		return nil, errors.New("sweeper: idle ttl must be positive")
	}
	if opts.Schedule == "" {
		opts.Schedule = "@every 15m"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	s := &Sweeper{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		opts: opts,
	}
	id, err := s.cron.AddFunc(opts.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RunTimeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return nil, err
	}
	s.entryID = id
	return s, nil
}

// RunOnce ends idle sessions immediately and returns how many were closed.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.opts.Clock().UTC().Add(-s.opts.IdleTTL)
	n, err := s.opts.Sessions.EndIdleSessions(ctx, cutoff)
	if err != nil {
		s.opts.Logger.Error().Err(err).Time("cutoff", cutoff).Msg("sweeper: end idle sessions failed")
		return 0, err
	}
	s.opts.Metrics.ObserveSessionsEnded(n)
	if n > 0 {
		s.opts.Logger.Info().Int64("ended", n).Time("cutoff", cutoff).Msg("sweeper: idle sessions ended")
	}
	return n, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.opts.Logger.Info().Str("schedule", s.opts.Schedule).Dur("idle_ttl", s.opts.IdleTTL).Msg("sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next reports when the sweep is due next. Zero before Start.
func (s *Sweeper) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}
