package infra

import (
	"context"
	"net/http"
	"time"
)

const (
	headerReadTimeout = 5 * time.Second
	// persistSlack covers storing the reply after the last chunk.
	persistSlack = 5 * time.Second
)

// HTTPServer owns the API listener and its streaming-aware timeouts.
type HTTPServer struct {
	server       *http.Server
	drainTimeout time.Duration
}

// NewHTTPServer builds the API server. A streamed reply may run for the full
// backend budget and then drain, so the write deadline never undercuts that.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: headerReadTimeout,
		WriteTimeout:      streamWriteTimeout(cfg),
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
	return &HTTPServer{server: srv, drainTimeout: cfg.StreamDrainTimeout}
}

func streamWriteTimeout(cfg *Config) time.Duration {
	if cfg.HTTPWriteTimeout <= 0 {
		return 0
	}
	floor := cfg.BackendTimeout + cfg.StreamDrainTimeout + persistSlack
	return max(cfg.HTTPWriteTimeout, floor)
}

func (s *HTTPServer) Addr() string { return s.server.Addr }

// ShutdownTimeout is long enough for in-flight replies to drain and persist.
func (s *HTTPServer) ShutdownTimeout() time.Duration {
	return s.drainTimeout + persistSlack
}

func (s *HTTPServer) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for active streams, bounded by
// ShutdownTimeout unless ctx ends first.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.ShutdownTimeout())
	defer cancel()
	return s.server.Shutdown(ctx)
}
