package chat

import (
	"context"
	"errors"
	"strings"

	"tutor/internal/domain"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// ErrEmptyResponse is returned when a backend completes without any text.
var ErrEmptyResponse = errors.New("empty response")

// Backend produces tutor replies from a list of turns.
type Backend interface {
	Name() string
	// Complete returns the whole reply in one call.
	Complete(ctx context.Context, turns []domain.Turn) (string, error)
	// Stream starts an incremental reply.
	Stream(ctx context.Context, turns []domain.Turn) (Stream, error)
}

// Stream yields reply chunks. Recv returns io.EOF after the last chunk.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Failure carries the phase and reason of a backend error for logging.
type Failure struct {
	Provider string
	Reason   string
	Err      error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Provider + ": " + f.Reason
	}
	return f.Provider + ": " + f.Reason + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

func failure(provider, reason string, err error) error {
	return &Failure{Provider: provider, Reason: reason, Err: err}
}

// FailureReason extracts the reason recorded on a backend error.
func FailureReason(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "unknown"
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
