package streamer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"tutor/internal/domain"
	"tutor/internal/metrics"
	"tutor/internal/providers/chat"
)

// Mode selects how the reply is delivered.
type Mode string

const (
	ModeStream   Mode = "stream"
	ModeBuffered Mode = "buffered"
)

// ParseMode maps a request flag to a Mode. Empty means streaming.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(raw) {
	case "", ModeStream:
		return ModeStream, true
	case ModeBuffered, "non-streaming":
		return ModeBuffered, true
	}
	return "", false
}

// Sink receives streamed output for one caller.
type Sink interface {
	Chunk(text string) error
	Done(sessionID string) error
	Keepalive() error
}

// PersistFunc stores the assistant reply. It is called at most once per Run.
type PersistFunc func(ctx context.Context, content string) error

type Request struct {
	SessionID string
	Turns     []domain.Turn
	Mode      Mode
	Persist   PersistFunc
}

// Outcome describes how a delivery ended.
type Outcome struct {
	State       State
	Reply       string
	Forwarded   int
	Transitions []State
}

type Options struct {
	Backend        chat.Backend
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	BackendTimeout time.Duration
	DrainTimeout   time.Duration
	Keepalive      time.Duration
	// AutoFallback retries once in buffered mode when the stream fails
	// before producing any content.
	AutoFallback bool
}

type Streamer struct {
	backend        chat.Backend
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	backendTimeout time.Duration
	drainTimeout   time.Duration
	keepalive      time.Duration
	autoFallback   bool
}

const defaultDrainTimeout = 30 * time.Second

func New(opts Options) (*Streamer, error) {
	if opts.Backend == nil {
		return nil, errors.New("streamer: backend is required")
	}
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	return &Streamer{
		backend:        opts.Backend,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		backendTimeout: opts.BackendTimeout,
		drainTimeout:   drain,
		keepalive:      opts.Keepalive,
		autoFallback:   opts.AutoFallback,
	}, nil
}

// Run delivers one reply. The returned Outcome is valid even when err is
// non-nil.
func (s *Streamer) Run(ctx context.Context, req Request, sink Sink) (Outcome, error) {
	if req.Persist == nil {
		return Outcome{State: StateIdle}, errors.New("streamer: persist func is required")
	}
	m := newMachine()
	run := &delivery{
		s:      s,
		req:    req,
		sink:   sink,
		m:      m,
		logger: s.logger.With().Str("session_id", req.SessionID).Str("provider", s.backend.Name()).Logger(),
	}
	var (
		reply string
		err   error
	)
	if req.Mode == ModeBuffered || sink == nil {
		reply, err = run.buffered(ctx)
	} else {
		reply, err = run.stream(ctx)
	}
	out := Outcome{
		State:       m.state,
		Reply:       reply,
		Forwarded:   run.forwarded,
		Transitions: append([]State(nil), m.history...),
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeStream
	}
	s.metrics.ObserveReply(string(mode), m.state.String())
	return out, err
}

// backendContext detaches from the caller so generation can finish and be
// persisted after a disconnect.
func (s *Streamer) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if s.backendTimeout > 0 {
		return context.WithTimeout(detached, s.backendTimeout)
	}
	return context.WithCancel(detached)
}

type delivery struct {
	s         *Streamer
	req       Request
	sink      Sink
	m         *machine
	logger    zerolog.Logger
	forwarded int
	// forwarding is cleared once the caller can no longer receive output.
	forwarding bool
}

func (d *delivery) buffered(ctx context.Context) (string, error) {
	if err := d.m.to(StateFallbackRequested); err != nil {
		return "", err
	}
	return d.complete(ctx)
}

// complete performs one synchronous backend call from FallbackRequested or
// Fallback, persists the reply and moves to Completed.
func (d *delivery) complete(ctx context.Context) (string, error) {
	bctx, cancel := d.s.backendContext(ctx)
	defer cancel()

	reply, err := d.s.backend.Complete(bctx, d.req.Turns)
	if err != nil {
		d.s.metrics.ObserveBackendFailure(d.s.backend.Name(), "complete")
		d.logger.Warn().Err(err).Str("reason", chat.FailureReason(err)).Msg("streamer: buffered generation failed")
		_ = d.m.to(StateFailed)
		return "", domain.BackendUnavailableError("generation backend unavailable", "", err)
	}
	if err := d.persist(ctx, reply); err != nil {
		_ = d.m.to(StateFailed)
		return reply, err
	}
	if d.forwarding && d.m.canEmit() {
		if err := d.sink.Chunk(reply); err != nil {
			d.callerGone(err)
		} else {
			d.forwarded++
			d.s.metrics.ObserveChunk()
		}
		d.done()
	}
	if err := d.m.to(StateCompleted); err != nil {
		return reply, err
	}
	return reply, nil
}

type recvResult struct {
	text string
	err  error
}

func (d *delivery) stream(ctx context.Context) (string, error) {
	if err := d.m.to(StateStreaming); err != nil {
		return "", err
	}
	d.forwarding = true

	bctx, cancel := d.s.backendContext(ctx)
	defer cancel()

	stream, err := d.s.backend.Stream(bctx, d.req.Turns)
	if err != nil {
		return d.fail(ctx, "open", &accumulator{}, err)
	}

	results := make(chan recvResult)
	quit := make(chan struct{})
	defer func() {
		close(quit)
		_ = stream.Close()
	}()
	go func() {
		for {
			text, err := stream.Recv()
			select {
			case results <- recvResult{text: text, err: err}:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var keepalive <-chan time.Time
	if d.s.keepalive > 0 {
		ticker := time.NewTicker(d.s.keepalive)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	acc := &accumulator{}
	callerDone := ctx.Done()
	var (
		drain      <-chan time.Time
		drainTimer *time.Timer
	)
	defer func() {
		if drainTimer != nil {
			drainTimer.Stop()
		}
	}()

	for {
		select {
		case r := <-results:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					return d.finish(ctx, acc)
				}
				return d.fail(ctx, "recv", acc, r.err)
			}
			if err := acc.Write(r.text); err != nil {
				return d.fail(ctx, "accumulate", acc, err)
			}
			d.forward(r.text)
		case <-keepalive:
			if d.forwarding {
				if err := d.sink.Keepalive(); err != nil {
					d.callerGone(err)
				}
			}
		case <-callerDone:
			callerDone = nil
			d.forwarding = false
			d.logger.Info().Int("chunks", acc.Chunks()).Msg("streamer: caller disconnected, draining backend")
			drainTimer = time.NewTimer(d.s.drainTimeout)
			drain = drainTimer.C
		case <-drain:
			drain = nil
			d.logger.Warn().Dur("drain_timeout", d.s.drainTimeout).Msg("streamer: drain timeout, cancelling backend")
			cancel()
		}
	}
}

func (d *delivery) forward(text string) {
	if !d.forwarding || !d.m.canEmit() {
		return
	}
	if err := d.sink.Chunk(text); err != nil {
		d.callerGone(err)
		return
	}
	d.forwarded++
	d.s.metrics.ObserveChunk()
}

func (d *delivery) callerGone(err error) {
	if d.forwarding {
		d.logger.Info().Err(err).Msg("streamer: caller write failed, forwarding stopped")
	}
	d.forwarding = false
}

func (d *delivery) done() {
	if !d.forwarding {
		return
	}
	if err := d.sink.Done(d.req.SessionID); err != nil {
		d.callerGone(err)
	}
}

// finish handles a clean end of stream.
func (d *delivery) finish(ctx context.Context, acc *accumulator) (string, error) {
	if acc.Chunks() == 0 {
		return d.fail(ctx, "empty", acc, chat.ErrEmptyResponse)
	}
	reply := acc.Finalize()
	if err := d.persist(ctx, reply); err != nil {
		_ = d.m.to(StateFailed)
		return reply, err
	}
	d.done()
	if err := d.m.to(StateCompleted); err != nil {
		return reply, err
	}
	return reply, nil
}

// fail handles a backend error while streaming. With nothing received the
// caller gets a clean retry signal, otherwise the partial reply is kept.
func (d *delivery) fail(ctx context.Context, phase string, acc *accumulator, cause error) (string, error) {
	d.s.metrics.ObserveBackendFailure(d.s.backend.Name(), phase)
	if err := d.m.to(StateDegrading); err != nil {
		return "", err
	}

	if acc.Chunks() == 0 {
		d.logger.Warn().Err(cause).Str("phase", phase).Str("reason", chat.FailureReason(cause)).Msg("streamer: backend failed before first chunk")
		if d.s.autoFallback {
			if err := d.m.to(StateFallback); err != nil {
				return "", err
			}
			return d.complete(ctx)
		}
		_ = d.m.to(StateFailed)
		return "", domain.BackendUnavailableError("generation backend unavailable", domain.RetryModeNonStreaming, cause)
	}

	partial := acc.Finalize()
	d.logger.Warn().Err(cause).Str("phase", phase).Int("chunks", acc.Chunks()).Msg("streamer: stream interrupted, keeping partial reply")
	_ = d.m.to(StateFailed)
	if err := d.persist(ctx, partial); err != nil {
		return partial, err
	}
	return partial, domain.StreamInterruptedError("reply stream interrupted", cause)
}

func (d *delivery) persist(ctx context.Context, content string) error {
	pctx := context.WithoutCancel(ctx)
	if err := d.req.Persist(pctx, content); err != nil {
		d.logger.Error().Err(err).Msg("streamer: persist reply failed")
		var derr *domain.Error
		if errors.As(err, &derr) {
			return err
		}
		return domain.PersistenceError("persist reply", err)
	}
	return nil
}
