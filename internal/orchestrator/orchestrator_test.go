package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/conversation"
	"tutor/internal/domain"
	"tutor/internal/plans"
	"tutor/internal/providers/chat"
	"tutor/internal/quota"
	"tutor/internal/streamer"
)

type fakeBackend struct {
	mu       sync.Mutex
	chunks   []string
	failWith error
	reply    string
	lastReq  []domain.Turn
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(_ context.Context, turns []domain.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = turns
	return f.reply, nil
}

func (f *fakeBackend) Stream(_ context.Context, turns []domain.Turn) (chat.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = turns
	return &fakeStream{chunks: append([]string(nil), f.chunks...), err: f.failWith}, nil
}

type fakeStream struct {
	chunks []string
	err    error
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.chunks) > 0 {
		c := s.chunks[0]
		s.chunks = s.chunks[1:]
		return c, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

type bufferSink struct {
	chunks []string
	done   string
}

func (b *bufferSink) Chunk(text string) error     { b.chunks = append(b.chunks, text); return nil }
func (b *bufferSink) Done(sessionID string) error { b.done = sessionID; return nil }
func (b *bufferSink) Keepalive() error            { return nil }

type harness struct {
	orch    *Orchestrator
	store   *conversation.Store
	ledger  *quota.MemoryLedger
	backend *fakeBackend
	now     time.Time
}

func newHarness(t *testing.T, limit int) *harness {
	t.Helper()
	h := &harness{
		ledger:  quota.NewMemoryLedger(),
		backend: &fakeBackend{},
		now:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	catalog, err := plans.NewCatalog([]domain.Plan{
		{ID: "free", Name: "Free", Limit: domain.IntPtr(limit), Interval: domain.IntervalDaily},
	}, "free")
	require.NoError(t, err)
	gate, err := quota.NewGate(quota.Options{Plans: catalog, Ledger: h.ledger, Logger: zerolog.Nop(), Clock: clock})
	require.NoError(t, err)

	h.store = conversation.NewStore(conversation.NewMemoryRepository(), zerolog.Nop(), conversation.WithClock(clock))
	s, err := streamer.New(streamer.Options{Backend: h.backend, Logger: zerolog.Nop()})
	require.NoError(t, err)

	h.orch, err = New(Options{Gate: gate, Conversations: h.store, Replier: s, Logger: zerolog.Nop(), HistoryTurns: 4})
	require.NoError(t, err)
	return h
}

var student = domain.Principal{UserID: "student-1", PlanID: "free", Locale: "en"}

func TestConverseQuotaScenario(t *testing.T) {
	h := newHarness(t, 2)
	h.backend.reply = "ok"
	ctx := context.Background()
	req := Request{Principal: student, Text: "hi", Mode: streamer.ModeBuffered}

	first, err := h.orch.Converse(ctx, req, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Admission.Count)

	req.SessionID = first.SessionID
	second, err := h.orch.Converse(ctx, req, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Admission.Count)

	third, err := h.orch.Converse(ctx, req, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
	assert.Equal(t, 2, third.Admission.Count)

	_, msgs, err := h.store.History(ctx, student.UserID, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4, "denied request stores nothing")
}

func TestConverseRolloverScenario(t *testing.T) {
	h := newHarness(t, 2)
	h.backend.reply = "ok"
	ctx := context.Background()
	req := Request{Principal: student, Text: "hi", Mode: streamer.ModeBuffered}

	for i := 0; i < 2; i++ {
		_, err := h.orch.Converse(ctx, req, nil)
		require.NoError(t, err)
	}
	_, err := h.orch.Converse(ctx, req, nil)
	require.True(t, errors.Is(err, domain.ErrQuotaExceeded))

	h.now = h.now.Add(25 * time.Hour)
	res, err := h.orch.Converse(ctx, req, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Admission.Count)
	require.NotNil(t, res.Admission.ResetAt)
	assert.True(t, res.Admission.ResetAt.After(h.now))
}

func TestConverseStreamInterruptedScenario(t *testing.T) {
	h := newHarness(t, 5)
	h.backend.chunks = []string{"Hel", "lo"}
	h.backend.failWith = errors.New("upstream closed")
	sink := &bufferSink{}
	ctx := context.Background()

	res, err := h.orch.Converse(ctx, Request{Principal: student, Text: "greet me", Mode: streamer.ModeStream}, sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStreamInterrupted))
	assert.Equal(t, "Hello", strings.Join(sink.chunks, ""))
	assert.Empty(t, sink.done)
	require.NotEmpty(t, res.SessionID)

	_, msgs, err := h.store.History(ctx, student.UserID, res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "greet me", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Content)
}

func TestConverseBufferedScenario(t *testing.T) {
	h := newHarness(t, 5)
	h.backend.reply = "42"
	ctx := context.Background()

	res, err := h.orch.Converse(ctx, Request{Principal: student, Text: "6 times 7?", Mode: streamer.ModeBuffered}, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", res.Reply)
	assert.True(t, res.Created)
	assert.Equal(t, streamer.StateCompleted, res.State)

	_, msgs, err := h.store.History(ctx, student.UserID, res.SessionID)
	require.NoError(t, err)
	var assistant []domain.Message
	for _, m := range msgs {
		if m.Role == domain.RoleAssistant {
			assistant = append(assistant, m)
		}
	}
	require.Len(t, assistant, 1)
	assert.Equal(t, "42", assistant[0].Content)
}

func TestConverseStreamingCompletenessAndHistory(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	h.backend.chunks = []string{"first ", "answer"}
	sink := &bufferSink{}
	res, err := h.orch.Converse(ctx, Request{Principal: student, Text: "q1", Mode: streamer.ModeStream, Tags: domain.SessionTags{Subject: "physics"}}, sink)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, sink.done)

	h.backend.chunks = []string{"second"}
	_, err = h.orch.Converse(ctx, Request{Principal: student, SessionID: res.SessionID, Text: "q2", Mode: streamer.ModeStream}, &bufferSink{})
	require.NoError(t, err)

	turns := h.backend.lastReq
	require.Len(t, turns, 4)
	sys, ok := turns[0].(domain.SystemTurn)
	require.True(t, ok)
	assert.Contains(t, sys.Content, "Physics")
	assert.Equal(t, domain.UserTurn{Content: "q1"}, turns[1])
	assert.Equal(t, domain.AssistantTurn{Content: "first answer"}, turns[2])
	assert.Equal(t, domain.UserTurn{Content: "q2"}, turns[3])

	_, msgs, err := h.store.History(ctx, student.UserID, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "first answer", msgs[1].Content)
	assert.Equal(t, strings.Join(sink.chunks, ""), msgs[1].Content)
}

func TestConverseHistoryIsBounded(t *testing.T) {
	h := newHarness(t, 20)
	h.backend.reply = "r"
	ctx := context.Background()

	res, err := h.orch.Converse(ctx, Request{Principal: student, Text: "m0", Mode: streamer.ModeBuffered}, nil)
	require.NoError(t, err)
	for i := 1; i < 5; i++ {
		_, err := h.orch.Converse(ctx, Request{Principal: student, SessionID: res.SessionID, Text: "m", Mode: streamer.ModeBuffered}, nil)
		require.NoError(t, err)
	}
	// preamble + 4 history turns + new message
	assert.Len(t, h.backend.lastReq, 6)
}

func TestConverseForeignSessionDenied(t *testing.T) {
	h := newHarness(t, 5)
	h.backend.reply = "ok"
	ctx := context.Background()

	res, err := h.orch.Converse(ctx, Request{Principal: student, Text: "mine", Mode: streamer.ModeBuffered}, nil)
	require.NoError(t, err)

	other := domain.Principal{UserID: "student-2", PlanID: "free"}
	_, err = h.orch.Converse(ctx, Request{Principal: other, SessionID: res.SessionID, Text: "let me in", Mode: streamer.ModeBuffered}, nil)
	assert.True(t, errors.Is(err, domain.ErrAccessDenied))
}

func TestConverseRejectsEmptyTextBeforeAdmission(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	_, err := h.orch.Converse(ctx, Request{Principal: student, Text: "   ", Mode: streamer.ModeBuffered}, nil)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	ledger, err := h.ledger.Get(ctx, student.UserID)
	require.NoError(t, err)
	assert.Zero(t, ledger.Count)
}

func TestConverseRejectsOversizedTextBeforeAdmission(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	// 6000 runes but 18000 bytes.
	_, err := h.orch.Converse(ctx, Request{Principal: student, Text: strings.Repeat("数", 6000), Mode: streamer.ModeBuffered}, nil)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	ledger, err := h.ledger.Get(ctx, student.UserID)
	require.NoError(t, err)
	assert.Zero(t, ledger.Count)
}

func TestConverseStreamsLongReplyAndStoresIt(t *testing.T) {
	h := newHarness(t, 5)
	h.backend.chunks = make([]string, 20)
	for i := range h.backend.chunks {
		h.backend.chunks[i] = strings.Repeat(string(rune('a'+i)), 1000)
	}
	sink := &bufferSink{}
	ctx := context.Background()

	res, err := h.orch.Converse(ctx, Request{Principal: student, Text: "explain everything", Mode: streamer.ModeStream}, sink)
	require.NoError(t, err)
	assert.Equal(t, streamer.StateCompleted, res.State)
	assert.Equal(t, res.SessionID, sink.done)

	_, msgs, err := h.store.History(ctx, student.UserID, res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 20000)
	assert.Equal(t, strings.Join(sink.chunks, ""), msgs[1].Content)
}

func TestPreambleLocales(t *testing.T) {
	session := domain.Session{Subject: "biologi", Level: "SMA"}
	id := Preamble("id-ID", session)
	assert.Contains(t, id.Content, "Kamu adalah tutor")
	assert.Contains(t, id.Content, "Biologi")
	assert.Contains(t, id.Content, "SMA")

	en := Preamble("fr", domain.Session{})
	assert.Contains(t, en.Content, "You are a patient tutor")
}
