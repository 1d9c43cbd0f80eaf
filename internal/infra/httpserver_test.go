package infra

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPServerWriteTimeoutCoversStreamBudget(t *testing.T) {
	tests := []struct {
		name  string
		write time.Duration
		want  time.Duration
	}{
		{name: "short configured timeout is raised", write: 30 * time.Second, want: 125 * time.Second},
		{name: "longer configured timeout is kept", write: 300 * time.Second, want: 300 * time.Second},
		{name: "disabled stays disabled", write: 0, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Port:               "0",
				BackendTimeout:     90 * time.Second,
				StreamDrainTimeout: 30 * time.Second,
				HTTPWriteTimeout:   tc.write,
			}
			srv := NewHTTPServer(cfg, http.NotFoundHandler())
			assert.Equal(t, tc.want, srv.server.WriteTimeout)
			assert.Equal(t, ":0", srv.Addr())
		})
	}
}

func TestHTTPServerShutdownBudget(t *testing.T) {
	srv := NewHTTPServer(&Config{Port: "0", StreamDrainTimeout: 10 * time.Second}, http.NotFoundHandler())
	assert.Equal(t, 15*time.Second, srv.ShutdownTimeout())
	require.NoError(t, srv.Shutdown(context.Background()))
}
