package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tutor/internal/domain"
)

// StaticBackend answers with a canned reply. Used when no provider is
// configured and in local development.
type StaticBackend struct{}

func NewStaticBackend() *StaticBackend {
	return &StaticBackend{}
}

func (s *StaticBackend) Name() string { return ProviderStatic }

func (s *StaticBackend) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", failure(ProviderStatic, "canceled", err)
	}
	return staticReply(turns), nil
}

// Stream yields the canned reply one word at a time.
func (s *StaticBackend) Stream(ctx context.Context, turns []domain.Turn) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure(ProviderStatic, "canceled", err)
	}
	return &sliceStream{ctx: ctx, chunks: SplitWords(staticReply(turns))}, nil
}

func staticReply(turns []domain.Turn) string {
	question := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if t, ok := turns[i].(domain.UserTurn); ok {
			question = strings.TrimSpace(t.Content)
			break
		}
	}
	if question == "" {
		return "Hello! What would you like to study today?"
	}
	topic := cases.Title(language.Und).String(strings.Fields(question)[0])
	return fmt.Sprintf("Let's work through %q together. Start by telling me what you already know about %s.", question, topic)
}

// SplitWords cuts text into chunks that concatenate back to text.
func SplitWords(text string) []string {
	var out []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' {
			out = append(out, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

type sliceStream struct {
	ctx    context.Context
	chunks []string
	pos    int
}

func (s *sliceStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", failure(ProviderStatic, "canceled", err)
	}
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error { return nil }

var _ Backend = (*StaticBackend)(nil)
