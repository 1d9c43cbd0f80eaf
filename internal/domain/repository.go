package domain

import (
	"context"
	"time"
)

// LedgerStore persists usage ledgers. Consume must check and update the
// ledger in a single atomic storage operation.
type LedgerStore interface {
	Consume(ctx context.Context, req ConsumeRequest) (ConsumeResult, error)
	Get(ctx context.Context, userID string) (UsageLedger, error)
	Reset(ctx context.Context, userID string) error
}

// ConversationRepository persists sessions and messages. Lookups of missing
// rows return ErrNotFound.
type ConversationRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]Session, error)
	EndSession(ctx context.Context, sessionID string, at time.Time) error
	EndIdleSessions(ctx context.Context, idleSince time.Time) (int64, error)

	InsertMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, sessionID, messageID string) (*Message, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	UpdateMessageContent(ctx context.Context, messageID, content string, at time.Time) error
	DeleteMessage(ctx context.Context, messageID string) error
}
