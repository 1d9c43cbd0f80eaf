package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"tutor/internal/domain"
)

// MemoryRepository is an in-process domain.ConversationRepository for
// development and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	seq      int64
	sessions map[string]domain.Session
	messages map[string][]domain.Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]domain.Session),
		messages: make(map[string][]domain.Message),
	}
}

func (m *MemoryRepository) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = s.CreatedAt
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryRepository) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) ListSessions(_ context.Context, userID string, limit int) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) EndSession(_ context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if s.EndedAt == nil {
		s.EndedAt = &at
	}
	s.UpdatedAt = at
	m.sessions[sessionID] = s
	return nil
}

func (m *MemoryRepository) EndIdleSessions(_ context.Context, idleSince time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for id, s := range m.sessions {
		if s.EndedAt == nil && s.UpdatedAt.Before(idleSince) {
			s.EndedAt = &now
			s.UpdatedAt = now
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) InsertMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return domain.ErrNotFound
	}
	// A replayed insert reports the stored row instead of adding another.
	for _, existing := range m.messages[msg.SessionID] {
		if existing.ID == msg.ID {
			msg.Seq = existing.Seq
			msg.CreatedAt = existing.CreatedAt
			msg.UpdatedAt = existing.UpdatedAt
			return nil
		}
	}
	m.seq++
	msg.Seq = m.seq
	msg.UpdatedAt = msg.CreatedAt
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], *msg)
	s.UpdatedAt = msg.CreatedAt
	m.sessions[msg.SessionID] = s
	return nil
}

func (m *MemoryRepository) GetMessage(_ context.Context, sessionID, messageID string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages[sessionID] {
		if msg.ID == messageID {
			out := msg
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryRepository) RecentMessages(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := m.sortedLocked(sessionID)
	out := make([]domain.Message, 0, limit)
	for i := len(sorted) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, sorted[i])
	}
	return out, nil
}

func (m *MemoryRepository) ListMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(sessionID), nil
}

func (m *MemoryRepository) UpdateMessageContent(_ context.Context, messageID, content string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, msgs := range m.messages {
		for i := range msgs {
			if msgs[i].ID == messageID && msgs[i].Role == domain.RoleUser {
				msgs[i].Content = content
				msgs[i].UpdatedAt = at
				m.messages[sid] = msgs
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (m *MemoryRepository) DeleteMessage(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, msgs := range m.messages {
		for i := range msgs {
			if msgs[i].ID == messageID && msgs[i].Role == domain.RoleUser {
				m.messages[sid] = append(msgs[:i:i], msgs[i+1:]...)
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (m *MemoryRepository) sortedLocked(sessionID string) []domain.Message {
	out := append([]domain.Message(nil), m.messages[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

var _ domain.ConversationRepository = (*MemoryRepository)(nil)
