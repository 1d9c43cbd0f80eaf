package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"tutor/internal/streamer"
)

type tokenEvent struct {
	Content string `json:"content"`
}

type doneEvent struct {
	SessionID string `json:"session_id"`
}

// sseWriter streams reply events. Headers are written on the first event
// so a failure before any output can still be answered with plain JSON.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// Started reports whether any event has been written.
func (s *sseWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	s.start()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		s.closed = true
		return fmt.Errorf("write %s event: %w", name, err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) Chunk(text string) error {
	return s.event("token", tokenEvent{Content: text})
}

func (s *sseWriter) Done(sessionID string) error {
	return s.event("done", doneEvent{SessionID: sessionID})
}

func (s *sseWriter) Keepalive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	s.start()
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		s.closed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

// Fail terminates the stream with an error event.
func (s *sseWriter) Fail(body errorBody) error {
	return s.event("error", body)
}

var _ streamer.Sink = (*sseWriter)(nil)
