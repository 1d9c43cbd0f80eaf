package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"tutor/internal/domain"
	"tutor/internal/metrics"
	"tutor/internal/middleware"
	"tutor/internal/orchestrator"
	"tutor/internal/streamer"
)

// Converser runs one conversational exchange.
type Converser interface {
	Converse(ctx context.Context, req orchestrator.Request, sink streamer.Sink) (orchestrator.Result, error)
}

// Conversations exposes session and transcript management.
type Conversations interface {
	ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (domain.Session, error)
	History(ctx context.Context, userID, sessionID string) (domain.Session, []domain.Message, error)
	EndSession(ctx context.Context, userID, sessionID string) (domain.Session, error)
	EditUserMessage(ctx context.Context, userID, sessionID, messageID, content string) (domain.Message, error)
	DeleteUserMessage(ctx context.Context, userID, sessionID, messageID string) error
}

// UsageService reads and resets usage ledgers.
type UsageService interface {
	Usage(ctx context.Context, p domain.Principal) (domain.Admission, error)
	Reset(ctx context.Context, userID string) error
}

type PlanCatalog interface {
	List() []domain.Plan
	DefaultID() string
}

// Attachments stores uploaded images.
type Attachments interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

type App struct {
	Converser     Converser
	Conversations Conversations
	Usage         UsageService
	Plans         PlanCatalog
	Attachments   Attachments
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error

	StorageBaseURL string

	validate *validator.Validate
}

func (a *App) validator() *validator.Validate {
	if a.validate == nil {
		a.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return a.validate
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// decode reads a JSON body into dst and validates it.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			a.error(w, http.StatusBadRequest, "bad_request", "request body is required")
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	if err := a.validator().Struct(dst); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_input", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func (a *App) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return domain.Principal{}, false
	}
	return p, true
}

const maxBodyBytes = 8 << 20
