package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tutor/internal/domain"
	"tutor/internal/middleware"
	"tutor/internal/orchestrator"
	"tutor/internal/streamer"
)

const maxImageBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

type converseRequest struct {
	// Text is capped in bytes, see domain.MaxUserMessageBytes.
	Text        string `json:"text" validate:"required"`
	SessionID   string `json:"session_id" validate:"max=64"`
	Subject     string `json:"subject" validate:"max=80"`
	Level       string `json:"level" validate:"max=40"`
	Mode        string `json:"mode" validate:"omitempty,oneof=stream buffered non-streaming"`
	ImageBase64 string `json:"image_base64"`
}

type usageDTO struct {
	PlanID    string     `json:"plan_id"`
	Count     int        `json:"count"`
	Limit     *int       `json:"limit"`
	Remaining *int       `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at"`
}

func toUsageDTO(a domain.Admission) usageDTO {
	return usageDTO{
		PlanID:    a.PlanID,
		Count:     a.Count,
		Limit:     a.Limit,
		Remaining: a.Remaining(),
		ResetAt:   a.ResetAt,
	}
}

type converseResponse struct {
	Reply     string   `json:"reply"`
	SessionID string   `json:"session_id"`
	Created   bool     `json:"created"`
	Usage     usageDTO `json:"usage"`
}

// ConverseMessage handles POST /v1/conversations/messages.
func (a *App) ConverseMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req converseRequest
	if !a.decode(w, r, &req) {
		return
	}
	if !a.withinMessageLimit(w, r, req.Text) {
		return
	}
	mode, _ := streamer.ParseMode(req.Mode)

	imageRef, imageURL, err := a.storeImage(r, p.UserID, req.ImageBase64)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	oreq := orchestrator.Request{
		Principal: p,
		SessionID: strings.TrimSpace(req.SessionID),
		Tags:      domain.SessionTags{Subject: req.Subject, Level: req.Level},
		Text:      req.Text,
		ImageRef:  imageRef,
		ImageURL:  imageURL,
		Mode:      mode,
		Locale:    middleware.LocaleFromContext(r.Context()),
	}

	var sse *sseWriter
	var sink streamer.Sink
	if mode == streamer.ModeStream {
		if sse, err = newSSEWriter(w); err != nil {
			a.Logger.Warn().Err(err).Msg("converse: streaming unsupported, answering buffered")
			oreq.Mode = streamer.ModeBuffered
		} else {
			sink = sse
		}
	}

	res, err := a.Converser.Converse(r.Context(), oreq, sink)
	if err != nil {
		if sse != nil && sse.Started() {
			derr := domain.AsError(err)
			a.report(r, statusFor(derr.Kind), err)
			body := bodyFor(derr)
			body.SessionID = res.SessionID
			_ = sse.Fail(body)
			return
		}
		a.failWith(w, r, err, func(b *errorBody) {
			b.SessionID = res.SessionID
			if domain.KindOf(err) == domain.KindQuotaExceeded {
				b.Usage = toUsageDTO(res.Admission)
			}
		})
		return
	}
	if sse != nil {
		return
	}
	a.json(w, http.StatusOK, converseResponse{
		Reply:     res.Reply,
		SessionID: res.SessionID,
		Created:   res.Created,
		Usage:     toUsageDTO(res.Admission),
	})
}

// withinMessageLimit rejects text longer than the stored message limit.
// Validator's max counts runes, the store counts bytes.
func (a *App) withinMessageLimit(w http.ResponseWriter, r *http.Request, text string) bool {
	if len(strings.TrimSpace(text)) > domain.MaxUserMessageBytes {
		a.fail(w, r, domain.InvalidInputError(fmt.Sprintf("text exceeds %d bytes", domain.MaxUserMessageBytes)))
		return false
	}
	return true
}

// storeImage saves an inline image attachment and returns its storage key
// and public URL.
func (a *App) storeImage(r *http.Request, userID, encoded string) (string, string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", "", nil
	}
	if a.Attachments == nil {
		return "", "", domain.InvalidInputError("image attachments are disabled")
	}
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i > 0 {
		encoded = encoded[i+1:]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxImageBytes+3 {
		return "", "", domain.InvalidInputError("image is too large")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", domain.InvalidInputError("image_base64 is not valid base64")
	}
	if len(data) > maxImageBytes {
		return "", "", domain.InvalidInputError("image is too large")
	}
	ext, ok := imageExtensions[http.DetectContentType(data)]
	if !ok {
		return "", "", domain.InvalidInputError("unsupported image type")
	}
	key := fmt.Sprintf("attachments/%s/%s.%s", userID, uuid.NewString(), ext)
	stored, err := a.Attachments.Write(r.Context(), key, data)
	if err != nil {
		return "", "", domain.PersistenceError("store attachment", err)
	}
	return stored, strings.TrimRight(a.StorageBaseURL, "/") + "/" + stored, nil
}
