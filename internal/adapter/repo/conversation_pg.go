package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tutor/internal/domain"
	"tutor/internal/infra"
	"tutor/internal/sqlinline"
)

// ConversationRepositoryPG implements domain.ConversationRepository backed by PostgreSQL.
type ConversationRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewConversationRepository(sql infra.SQLExecutor) *ConversationRepositoryPG {
	return &ConversationRepositoryPG{sql: sql}
}

func (r *ConversationRepositoryPG) CreateSession(ctx context.Context, s *domain.Session) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertSession, s.ID, s.UserID, s.Subject, s.Level, s.CreatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	s.UpdatedAt = s.CreatedAt
	return nil
}

func (r *ConversationRepositoryPG) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectSession, sessionID)
	s, err := scanSession(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return s, nil
}

func (r *ConversationRepositoryPG) ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListSessionsByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (r *ConversationRepositoryPG) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QEndSession, sessionID, at)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepositoryPG) EndIdleSessions(ctx context.Context, idleSince time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QEndIdleSessions, idleSince)
	if err != nil {
		return 0, fmt.Errorf("end idle sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ConversationRepositoryPG) InsertMessage(ctx context.Context, m *domain.Message) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertMessage,
		m.ID, m.SessionID, m.UserID, string(m.Role), m.Content, m.ImageRef, m.CreatedAt)
	var createdAt time.Time
	if err := row.Scan(&m.Seq, &createdAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.CreatedAt = createdAt.UTC()
	m.UpdatedAt = m.CreatedAt
	return nil
}

func (r *ConversationRepositoryPG) GetMessage(ctx context.Context, sessionID, messageID string) (*domain.Message, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectMessage, sessionID, messageID)
	m, err := scanMessage(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select message: %w", err)
	}
	return m, nil
}

// RecentMessages returns up to limit messages, newest first.
func (r *ConversationRepositoryPG) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QRecentMessages, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return collectMessages(rows)
}

// ListMessages returns the whole transcript, oldest first.
func (r *ConversationRepositoryPG) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListMessages, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return collectMessages(rows)
}

func (r *ConversationRepositoryPG) UpdateMessageContent(ctx context.Context, messageID, content string, at time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateUserMessage, messageID, content, at)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepositoryPG) DeleteMessage(ctx context.Context, messageID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteUserMessage, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s       domain.Session
		endedAt *time.Time
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Subject, &s.Level, &s.CreatedAt, &s.UpdatedAt, &endedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.EndedAt = utcPtr(endedAt)
	return &s, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m    domain.Message
		role string
	)
	if err := row.Scan(&m.ID, &m.SessionID, &m.UserID, &role, &m.Content, &m.ImageRef, &m.Seq, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

var _ domain.ConversationRepository = (*ConversationRepositoryPG)(nil)
