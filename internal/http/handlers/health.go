package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness pings the backing stores.
func (a *App) Readiness(w http.ResponseWriter, r *http.Request) {
	if a.Ready == nil {
		a.json(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Ready(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("readiness check failed")
		a.error(w, http.StatusServiceUnavailable, "not_ready", "backing store unreachable")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ready"})
}
