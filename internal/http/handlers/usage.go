package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tutor/internal/domain"
)

// UsageGet reports the caller's current window without consuming it.
func (a *App) UsageGet(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	adm, err := a.Usage.Usage(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toUsageDTO(adm))
}

type planDTO struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Limit      *int                 `json:"limit"`
	Interval   domain.ResetInterval `json:"interval"`
	Currency   string               `json:"currency,omitempty"`
	PriceCents int64                `json:"price_cents"`
	Default    bool                 `json:"default"`
}

func (a *App) PlansList(w http.ResponseWriter, r *http.Request) {
	defaultID := a.Plans.DefaultID()
	plans := a.Plans.List()
	items := make([]planDTO, 0, len(plans))
	for _, p := range plans {
		items = append(items, planDTO{
			ID:         p.ID,
			Name:       p.Name,
			Limit:      p.Limit,
			Interval:   p.Interval,
			Currency:   p.Currency,
			PriceCents: p.PriceCents,
			Default:    p.ID == defaultID,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// AdminUsageReset clears a user's ledger. Routed behind RequireAdmin.
func (a *App) AdminUsageReset(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		a.error(w, http.StatusBadRequest, "invalid_input", "user id is required")
		return
	}
	if err := a.Usage.Reset(r.Context(), userID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().Str("admin_id", p.UserID).Str("user_id", userID).Msg("usage ledger reset")
	a.json(w, http.StatusOK, map[string]string{"status": "reset", "user_id": userID})
}
