package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tutor/internal/domain"
	"tutor/pkg/zip"
)

type sessionDTO struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject,omitempty"`
	Level     string     `json:"level,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func toSessionDTO(s domain.Session) sessionDTO {
	return sessionDTO{
		ID:        s.ID,
		Subject:   s.Subject,
		Level:     s.Level,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		EndedAt:   s.EndedAt,
	}
}

type messageDTO struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ImageRef  string    `json:"image_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toMessageDTO(m domain.Message) messageDTO {
	return messageDTO{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		ImageRef:  m.ImageRef,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (a *App) SessionsList(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := a.Conversations.ListSessions(r.Context(), p.UserID, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionDTO(s))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) SessionGet(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	s, err := a.Conversations.GetSession(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toSessionDTO(s))
}

func (a *App) SessionMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	s, msgs, err := a.Conversations.History(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageDTO(m))
	}
	a.json(w, http.StatusOK, map[string]any{"session": toSessionDTO(s), "items": items})
}

func (a *App) SessionEnd(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	s, err := a.Conversations.EndSession(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toSessionDTO(s))
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

func (a *App) MessageEdit(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req editMessageRequest
	if !a.decode(w, r, &req) || !a.withinMessageLimit(w, r, req.Content) {
		return
	}
	m, err := a.Conversations.EditUserMessage(r.Context(), p.UserID, chi.URLParam(r, "id"), chi.URLParam(r, "messageID"), req.Content)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toMessageDTO(m))
}

func (a *App) MessageDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.Conversations.DeleteUserMessage(r.Context(), p.UserID, chi.URLParam(r, "id"), chi.URLParam(r, "messageID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionExport returns the transcript as a zip with a text and a JSON copy.
func (a *App) SessionExport(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	s, msgs, err := a.Conversations.History(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageDTO(m))
	}
	archive, err := zip.Archive([]zip.Entry{
		{Name: "transcript.txt", Data: []byte(renderTranscript(s, msgs))},
		zip.JSONEntry("transcript.json", map[string]any{"session": toSessionDTO(s), "messages": items}),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.zip"`, s.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func renderTranscript(s domain.Session, msgs []domain.Message) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Session %s\n", s.ID)
	if s.Subject != "" {
		fmt.Fprintf(sb, "Subject: %s\n", s.Subject)
	}
	if s.Level != "" {
		fmt.Fprintf(sb, "Level: %s\n", s.Level)
	}
	fmt.Fprintf(sb, "Started: %s\n\n", s.CreatedAt.Format(time.RFC3339))
	for _, m := range msgs {
		fmt.Fprintf(sb, "[%s] %s:\n%s\n\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
	}
	return sb.String()
}
