package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tutor/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	backend, err := NewOpenAIBackend(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIBackend returned error: %v", err)
	}
	return backend
}

func TestOpenAIStreamChunks(t *testing.T) {
	var gotModel string
	var gotMessages int
	backend := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string            `json:"model"`
			Messages []json.RawMessage `json:"messages"`
			Stream   bool              `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		gotMessages = len(body.Messages)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Two ", "plus ", "two ", "is four."} {
			fmt.Fprintf(w, "data: {\"id\":\"x\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	turns := []domain.Turn{
		domain.SystemTurn{Content: "You are a tutor."},
		domain.UserTurn{Content: "what is 2+2?"},
	}
	stream, err := backend.Stream(context.Background(), turns)
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv returned error: %v", err)
		}
		sb.WriteString(chunk)
	}
	if sb.String() != "Two plus two is four." {
		t.Fatalf("reply = %q", sb.String())
	}
	if gotModel != defaultOpenAIModel {
		t.Fatalf("model = %q, want %q", gotModel, defaultOpenAIModel)
	}
	if gotMessages != 2 {
		t.Fatalf("messages = %d, want 2", gotMessages)
	}
}

func TestOpenAIStreamStatusError(t *testing.T) {
	backend := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})
	_, err := backend.Stream(context.Background(), []domain.Turn{domain.UserTurn{Content: "hi"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if FailureReason(err) != "http_request" {
		t.Fatalf("reason = %q", FailureReason(err))
	}
}

func TestOpenAICompleteEmptyResponse(t *testing.T) {
	backend := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  "}}]}`))
	})
	_, err := backend.Complete(context.Background(), []domain.Turn{domain.UserTurn{Content: "hi"}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestOpenAICompleteTransportError(t *testing.T) {
	backend, err := NewOpenAIBackend(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("boom")
		})},
	})
	if err != nil {
		t.Fatalf("NewOpenAIBackend returned error: %v", err)
	}
	_, err = backend.Complete(context.Background(), []domain.Turn{domain.UserTurn{Content: "hi"}})
	if err == nil || FailureReason(err) != "http_request" {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAIBackend(OpenAIOptions{}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestOpenAIMessagesImageTurn(t *testing.T) {
	msgs := openAIMessages([]domain.Turn{
		domain.SystemTurn{Content: "sys"},
		domain.AssistantTurn{Content: "earlier"},
		domain.UserTurn{Content: "look", ImageURL: "http://localhost/static/a.png"},
	})
	if len(msgs) != 3 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[1].Role != "assistant" {
		t.Fatalf("role = %q", msgs[1].Role)
	}
	if len(msgs[2].MultiContent) != 2 || msgs[2].Content != "" {
		t.Fatalf("image turn not multi-part: %+v", msgs[2])
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  string
		model  string
		reason string
	}{
		{name: "exact_default", input: "gpt-4o-mini", model: "gpt-4o-mini", reason: ""},
		{name: "exact_large", input: "GPT-4o", model: "gpt-4o", reason: ""},
		{name: "alias_short", input: "gpt-3.5", model: "gpt-3.5-turbo", reason: "alias"},
		{name: "alias_underscore", input: "gpt4o_mini", model: "gpt-4o-mini", reason: "alias"},
		{name: "unsupported", input: "gpt-4.1", model: "gpt-4o-mini", reason: "defaulted"},
		{name: "empty", input: "", model: "gpt-4o-mini", reason: ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			model, reason := normalizeOpenAIModel(tc.input)
			if model != tc.model || reason != tc.reason {
				t.Fatalf("normalizeOpenAIModel(%q) = (%q, %q), want (%q, %q)", tc.input, model, reason, tc.model, tc.reason)
			}
		})
	}
}
