package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tutor/internal/domain"
)

const maxListSessions = 100

// Store enforces ownership and ordering rules on top of a repository.
type Store struct {
	repo   domain.ConversationRepository
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.now = clock }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func NewStore(repo domain.ConversationRepository, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveOrCreateSession returns the caller's session when sessionID is set,
// or creates a new one tagged with tags.
func (s *Store) ResolveOrCreateSession(ctx context.Context, userID, sessionID string, tags domain.SessionTags) (domain.Resolution, error) {
	if strings.TrimSpace(sessionID) != "" {
		session, err := s.owned(ctx, userID, sessionID)
		if err != nil {
			return domain.Resolution{}, err
		}
		if session.Ended() {
			return domain.Resolution{}, domain.InvalidInputError("session has ended")
		}
		return domain.Resolution{Kind: domain.ResolutionExisting, Session: *session}, nil
	}

	session := &domain.Session{
		ID:        s.newID(),
		UserID:    userID,
		Subject:   strings.TrimSpace(tags.Subject),
		Level:     strings.TrimSpace(tags.Level),
		CreatedAt: s.now().UTC(),
	}
	err := s.withRetry(ctx, "create session", func() error {
		return s.repo.CreateSession(ctx, session)
	})
	if err != nil {
		return domain.Resolution{}, err
	}
	s.logger.Debug().Str("session_id", session.ID).Str("user_id", userID).Msg("conversation: session created")
	return domain.Resolution{Kind: domain.ResolutionCreated, Session: *session}, nil
}

// AppendMessage persists a message at the end of the session.
func (s *Store) AppendMessage(ctx context.Context, userID, sessionID string, role domain.Role, content, imageRef string) (domain.Message, error) {
	if !role.Valid() {
		return domain.Message{}, domain.InvalidInputError("unknown message role")
	}
	if len(content) > role.MaxContentBytes() {
		return domain.Message{}, domain.InvalidInputError("message is too long")
	}
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return domain.Message{}, err
	}
	msg := &domain.Message{
		ID:        s.newID(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		ImageRef:  imageRef,
		CreatedAt: s.now().UTC(),
	}
	err := s.withRetry(ctx, "append message", func() error {
		return s.repo.InsertMessage(ctx, msg)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return *msg, nil
}

// RecentHistory returns at most limit messages ending with the newest one,
// in chronological order.
func (s *Store) RecentHistory(ctx context.Context, userID, sessionID string, limit int) ([]domain.Message, error) {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	msgs, err := s.repo.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, domain.PersistenceError("load history", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// History returns the whole transcript in chronological order.
func (s *Store) History(ctx context.Context, userID, sessionID string) (domain.Session, []domain.Message, error) {
	session, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return domain.Session{}, nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return domain.Session{}, nil, domain.PersistenceError("load transcript", err)
	}
	return *session, msgs, nil
}

func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (domain.Session, error) {
	session, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

func (s *Store) ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	if limit <= 0 || limit > maxListSessions {
		limit = maxListSessions
	}
	sessions, err := s.repo.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, domain.PersistenceError("list sessions", err)
	}
	return sessions, nil
}

// EndSession closes the session. Ending an ended session is a no-op.
func (s *Store) EndSession(ctx context.Context, userID, sessionID string) (domain.Session, error) {
	session, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Ended() {
		return *session, nil
	}
	at := s.now().UTC()
	if err := s.repo.EndSession(ctx, sessionID, at); err != nil {
		return domain.Session{}, domain.PersistenceError("end session", err)
	}
	session.EndedAt = &at
	session.UpdatedAt = at
	return *session, nil
}

// EditUserMessage replaces the content of one of the caller's own user
// messages. Assistant and system messages are immutable.
func (s *Store) EditUserMessage(ctx context.Context, userID, sessionID, messageID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, domain.InvalidInputError("content is required")
	}
	if len(content) > domain.MaxUserMessageBytes {
		return domain.Message{}, domain.InvalidInputError("message is too long")
	}
	msg, err := s.editableMessage(ctx, userID, sessionID, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	at := s.now().UTC()
	if err := s.repo.UpdateMessageContent(ctx, msg.ID, content, at); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Message{}, domain.NotFoundError("message not found")
		}
		return domain.Message{}, domain.PersistenceError("update message", err)
	}
	msg.Content = content
	msg.UpdatedAt = at
	return *msg, nil
}

// DeleteUserMessage removes one of the caller's own user messages.
func (s *Store) DeleteUserMessage(ctx context.Context, userID, sessionID, messageID string) error {
	msg, err := s.editableMessage(ctx, userID, sessionID, messageID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMessage(ctx, msg.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundError("message not found")
		}
		return domain.PersistenceError("delete message", err)
	}
	return nil
}

// EndIdleSessions closes every open session without activity since idleSince.
func (s *Store) EndIdleSessions(ctx context.Context, idleSince time.Time) (int64, error) {
	n, err := s.repo.EndIdleSessions(ctx, idleSince.UTC())
	if err != nil {
		return 0, domain.PersistenceError("end idle sessions", err)
	}
	return n, nil
}

func (s *Store) editableMessage(ctx context.Context, userID, sessionID, messageID string) (*domain.Message, error) {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, domain.NotFoundError("message not found")
	}
	msg, err := s.repo.GetMessage(ctx, sessionID, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundError("message not found")
		}
		return nil, domain.PersistenceError("load message", err)
	}
	if msg.Role != domain.RoleUser || msg.UserID != userID {
		return nil, domain.AccessDeniedError("only your own messages can be changed")
	}
	return msg, nil
}

// owned loads the session and checks it belongs to userID. Missing and
// foreign sessions produce the same AccessDenied error.
func (s *Store) owned(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.AccessDeniedError("session not accessible")
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, domain.AccessDeniedError("session not accessible")
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.AccessDeniedError("session not accessible")
		}
		return nil, domain.PersistenceError("load session", err)
	}
	if session.UserID != userID {
		s.logger.Warn().Str("session_id", sessionID).Str("user_id", userID).Msg("conversation: foreign session access denied")
		return nil, domain.AccessDeniedError("session not accessible")
	}
	return session, nil
}

// withRetry runs a write, retrying it once on failure.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return domain.PersistenceError(op, err)
	}
	s.logger.Warn().Err(err).Str("op", op).Msg("conversation: write failed, retrying once")
	if err := fn(); err != nil {
		return domain.PersistenceError(op, err)
	}
	return nil
}
