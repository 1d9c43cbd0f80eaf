package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tutor/internal/domain"
	"tutor/internal/streamer"
)

var tracer = otel.Tracer("tutor.orchestrator")

const defaultHistoryTurns = 10

// Gate admits one unit of billable work.
type Gate interface {
	Admit(ctx context.Context, p domain.Principal) (domain.Admission, error)
}

// Conversations is the subset of the conversation store used per message.
type Conversations interface {
	ResolveOrCreateSession(ctx context.Context, userID, sessionID string, tags domain.SessionTags) (domain.Resolution, error)
	AppendMessage(ctx context.Context, userID, sessionID string, role domain.Role, content, imageRef string) (domain.Message, error)
	RecentHistory(ctx context.Context, userID, sessionID string, limit int) ([]domain.Message, error)
}

// Replier delivers a generated reply.
type Replier interface {
	Run(ctx context.Context, req streamer.Request, sink streamer.Sink) (streamer.Outcome, error)
}

type Options struct {
	Gate          Gate
	Conversations Conversations
	Replier       Replier
	Logger        zerolog.Logger
	HistoryTurns  int
}

// Orchestrator runs one conversational exchange. It holds no per-request
// state.
type Orchestrator struct {
	gate         Gate
	store        Conversations
	replier      Replier
	logger       zerolog.Logger
	historyTurns int
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Gate == nil || opts.Conversations == nil || opts.Replier == nil {
		return nil, errors.New("orchestrator: gate, conversations and replier are required")
	}
	turns := opts.HistoryTurns
	if turns <= 0 {
		turns = defaultHistoryTurns
	}
	return &Orchestrator{
		gate:         opts.Gate,
		store:        opts.Conversations,
		replier:      opts.Replier,
		logger:       opts.Logger,
		historyTurns: turns,
	}, nil
}

type Request struct {
	Principal domain.Principal
	SessionID string
	Tags      domain.SessionTags
	Text      string
	// ImageRef is the stored attachment key, ImageURL where the backend can fetch it.
	ImageRef string
	ImageURL string
	Mode     streamer.Mode
	Locale   string
}

type Result struct {
	SessionID string
	Created   bool
	Reply     string
	State     streamer.State
	Admission domain.Admission
}

// Converse admits the request, records the user's message and delivers the
// reply. Result.SessionID is set whenever a session was resolved, even when
// an error is returned.
func (o *Orchestrator) Converse(ctx context.Context, req Request, sink streamer.Sink) (Result, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Converse", trace.WithAttributes(
		attribute.String("user.id", req.Principal.UserID),
		attribute.String("plan.id", req.Principal.PlanID),
		attribute.String("reply.mode", string(req.Mode)),
	))
	defer span.End()

	res, err := o.converse(ctx, req, sink)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
	}
	span.SetAttributes(attribute.String("session.id", res.SessionID), attribute.String("reply.state", res.State.String()))
	return res, err
}

func (o *Orchestrator) converse(ctx context.Context, req Request, sink streamer.Sink) (Result, error) {
	var res Result
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return res, domain.InvalidInputError("text is required")
	}
	if len(text) > domain.MaxUserMessageBytes {
		return res, domain.InvalidInputError("message is too long")
	}
	userID := req.Principal.UserID
	log := o.logger.With().Str("user_id", userID).Logger()

	admission, err := o.admit(ctx, req.Principal)
	res.Admission = admission
	if err != nil {
		return res, err
	}

	resolution, err := o.resolve(ctx, userID, req.SessionID, req.Tags)
	if err != nil {
		return res, err
	}
	session := resolution.Session
	res.SessionID = session.ID
	res.Created = resolution.Created()
	log = log.With().Str("session_id", session.ID).Logger()

	userMsg, err := o.store.AppendMessage(ctx, userID, session.ID, domain.RoleUser, text, req.ImageRef)
	if err != nil {
		log.Error().Err(err).Msg("orchestrator: user message not stored")
		return res, err
	}

	turns, err := o.buildTurns(ctx, req, session, userMsg)
	if err != nil {
		return res, err
	}

	outcome, err := o.replier.Run(ctx, streamer.Request{
		SessionID: session.ID,
		Turns:     turns,
		Mode:      req.Mode,
		Persist: func(ctx context.Context, content string) error {
			_, err := o.store.AppendMessage(ctx, userID, session.ID, domain.RoleAssistant, content, "")
			return err
		},
	}, sink)
	res.Reply = outcome.Reply
	res.State = outcome.State
	if err != nil {
		log.Warn().Err(err).Str("state", outcome.State.String()).Int("forwarded", outcome.Forwarded).Msg("orchestrator: reply not completed")
		return res, err
	}
	log.Info().Str("state", outcome.State.String()).Int("reply_bytes", len(outcome.Reply)).Bool("created", res.Created).Msg("orchestrator: reply delivered")
	return res, nil
}

func (o *Orchestrator) admit(ctx context.Context, p domain.Principal) (domain.Admission, error) {
	ctx, span := tracer.Start(ctx, "quota.Admit")
	defer span.End()
	admission, err := o.gate.Admit(ctx, p)
	span.SetAttributes(attribute.Bool("admitted", admission.Admitted), attribute.Int("usage.count", admission.Count))
	if err != nil {
		span.RecordError(err)
	}
	return admission, err
}

func (o *Orchestrator) resolve(ctx context.Context, userID, sessionID string, tags domain.SessionTags) (domain.Resolution, error) {
	ctx, span := tracer.Start(ctx, "conversation.Resolve")
	defer span.End()
	resolution, err := o.store.ResolveOrCreateSession(ctx, userID, sessionID, tags)
	if err != nil {
		span.RecordError(err)
		return resolution, err
	}
	span.SetAttributes(attribute.String("resolution", resolution.Kind.String()))
	return resolution, nil
}

// buildTurns assembles preamble, bounded history and the new message. The
// just-stored user message is excluded from history so it appears once.
func (o *Orchestrator) buildTurns(ctx context.Context, req Request, session domain.Session, current domain.Message) ([]domain.Turn, error) {
	ctx, span := tracer.Start(ctx, "conversation.RecentHistory")
	defer span.End()

	history, err := o.store.RecentHistory(ctx, req.Principal.UserID, session.ID, o.historyTurns+1)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	prior := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.ID != current.ID {
			prior = append(prior, m)
		}
	}
	if len(prior) > o.historyTurns {
		prior = prior[len(prior)-o.historyTurns:]
	}
	span.SetAttributes(attribute.Int("history.len", len(prior)))

	locale := req.Locale
	if locale == "" {
		locale = req.Principal.Locale
	}
	turns := make([]domain.Turn, 0, len(prior)+2)
	turns = append(turns, Preamble(locale, session))
	for _, m := range prior {
		turns = append(turns, domain.TurnFromMessage(m))
	}
	turns = append(turns, domain.UserTurn{Content: current.Content, ImageURL: req.ImageURL})
	return turns, nil
}
