package domain

import "time"

// Session groups the messages of one tutoring conversation.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Subject   string     `json:"subject,omitempty"`
	Level     string     `json:"level,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Ended reports whether the session has been closed.
func (s Session) Ended() bool {
	return s.EndedAt != nil
}

// SessionTags carries the subject and level a session is created with.
type SessionTags struct {
	Subject string
	Level   string
}

// ResolutionKind distinguishes a resumed session from a fresh one.
type ResolutionKind int

const (
	ResolutionExisting ResolutionKind = iota + 1
	ResolutionCreated
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionExisting:
		return "existing"
	case ResolutionCreated:
		return "created"
	}
	return "unknown"
}

// Resolution is the tagged result of resolving a session for a message.
type Resolution struct {
	Kind    ResolutionKind
	Session Session
}

func (r Resolution) Created() bool {
	return r.Kind == ResolutionCreated
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Content limits in bytes. Generated replies get the larger budget so a
// completed reply always fits.
const (
	MaxUserMessageBytes = 16000
	MaxReplyBytes       = 512 * 1024
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// MaxContentBytes is the largest content a message of this role may carry.
func (r Role) MaxContentBytes() int {
	if r == RoleUser {
		return MaxUserMessageBytes
	}
	return MaxReplyBytes
}

// Message is a single turn persisted within a session. Seq breaks ties
// between messages created within the same instant.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ImageRef  string    `json:"image_ref,omitempty"`
	Seq       int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Before reports whether m precedes other in session order.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
