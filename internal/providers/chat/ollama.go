package chat

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"tutor/internal/domain"
)

type OllamaOptions struct {
	ServerURL  string
	Model      string
	HTTPClient *http.Client
}

// OllamaBackend talks to a local Ollama server through langchaingo.
type OllamaBackend struct {
	llm   llms.Model
	model string
}

func NewOllamaBackend(opts OllamaOptions) (*OllamaBackend, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "llama3.1"
	}
	llmOpts := []ollama.Option{ollama.WithModel(model)}
	if url := strings.TrimSpace(opts.ServerURL); url != "" {
		llmOpts = append(llmOpts, ollama.WithServerURL(url))
	}
	if opts.HTTPClient != nil {
		llmOpts = append(llmOpts, ollama.WithHTTPClient(opts.HTTPClient))
	}
	llm, err := ollama.New(llmOpts...)
	if err != nil {
		return nil, err
	}
	return &OllamaBackend{llm: llm, model: model}, nil
}

func (o *OllamaBackend) Name() string { return ProviderOllama }

func (o *OllamaBackend) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	resp, err := o.llm.GenerateContent(ctx, ollamaMessages(turns))
	if err != nil {
		return "", failure(ProviderOllama, "generate", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", failure(ProviderOllama, "empty_response", ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}

// Stream runs GenerateContent in the background and relays the streaming
// callback through a channel.
func (o *OllamaBackend) Stream(ctx context.Context, turns []domain.Turn) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &ollamaStream{
		chunks: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		_, err := o.llm.GenerateContent(ctx, ollamaMessages(turns),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				select {
				case s.chunks <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}))
		if err != nil {
			s.err = failure(ProviderOllama, "stream_generate", err)
		}
	}()
	return s, nil
}

type ollamaStream struct {
	chunks chan string
	done   chan struct{}
	cancel context.CancelFunc
	err    error
	once   sync.Once
}

func (s *ollamaStream) Recv() (string, error) {
	select {
	case chunk := <-s.chunks:
		return chunk, nil
	case <-s.done:
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
}

func (s *ollamaStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}

func ollamaMessages(turns []domain.Turn) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		switch t := turn.(type) {
		case domain.SystemTurn:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, t.Content))
		case domain.AssistantTurn:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, t.Content))
		case domain.UserTurn:
			parts := []llms.ContentPart{llms.TextContent{Text: t.Content}}
			if t.ImageURL != "" {
				parts = append(parts, llms.ImageURLContent{URL: t.ImageURL})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
		}
	}
	return out
}

var _ Backend = (*OllamaBackend)(nil)
