package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"tutor/internal/domain"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	RetryMode string `json:"retry_mode,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Usage     any    `json:"usage,omitempty"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.KindAccessDenied:
		return http.StatusForbidden
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindStreamInterrupted:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func bodyFor(derr *domain.Error) errorBody {
	msg := derr.Message
	if derr.Kind == domain.KindInternal {
		msg = "internal error"
	}
	return errorBody{
		Error:     string(derr.Kind),
		Message:   msg,
		Retryable: derr.Retryable,
		RetryMode: derr.RetryMode,
	}
}

// fail writes err as a structured JSON response.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.failWith(w, r, err, func(*errorBody) {})
}

func (a *App) failWith(w http.ResponseWriter, r *http.Request, err error, decorate func(*errorBody)) {
	derr := domain.AsError(err)
	status := statusFor(derr.Kind)
	a.report(r, status, err)
	body := bodyFor(derr)
	decorate(&body)
	a.json(w, status, body)
}

// report logs err and forwards server-side failures to Sentry.
func (a *App) report(r *http.Request, status int, err error) {
	log := zerolog.Ctx(r.Context())
	if log.GetLevel() == zerolog.Disabled {
		log = &a.Logger
	}
	if status < http.StatusInternalServerError {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
		return
	}
	log.Error().Err(err).Int("status", status).Msg("request failed")
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	}
}
