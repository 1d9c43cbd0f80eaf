package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConfiguration      = errors.New("configuration error")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrUnsupportedPlan    = errors.New("unsupported plan")
	ErrAccessDenied       = errors.New("access denied")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrStreamInterrupted  = errors.New("stream interrupted")
	ErrPersistence        = errors.New("persistence failure")
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindConfiguration      ErrorKind = "configuration_error"
	KindQuotaExceeded      ErrorKind = "quota_exceeded"
	KindAccessDenied       ErrorKind = "access_denied"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindStreamInterrupted  ErrorKind = "stream_interrupted"
	KindPersistence        ErrorKind = "persistence_failure"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindNotFound           ErrorKind = "not_found"
	KindInternal           ErrorKind = "internal"
)

// RetryModeNonStreaming tells the caller to repeat the request in buffered mode.
const RetryModeNonStreaming = "non-streaming"

var kindSentinels = map[ErrorKind]error{
	KindConfiguration:      ErrConfiguration,
	KindQuotaExceeded:      ErrQuotaExceeded,
	KindAccessDenied:       ErrAccessDenied,
	KindBackendUnavailable: ErrBackendUnavailable,
	KindStreamInterrupted:  ErrStreamInterrupted,
	KindPersistence:        ErrPersistence,
	KindInvalidInput:       ErrInvalidInput,
	KindNotFound:           ErrNotFound,
}

// Error is the structured failure returned across component boundaries.
type Error struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	RetryMode string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match an Error against the sentinel of its kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

func ConfigurationError(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: msg, Err: err}
}

func QuotaExceededError(msg string) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: msg}
}

func AccessDeniedError(msg string) *Error {
	return &Error{Kind: KindAccessDenied, Message: msg}
}

func InvalidInputError(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func NotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// BackendUnavailableError reports a backend failure before any content reached the caller.
func BackendUnavailableError(msg, retryMode string, err error) *Error {
	return &Error{Kind: KindBackendUnavailable, Message: msg, Retryable: true, RetryMode: retryMode, Err: err}
}

// StreamInterruptedError reports a backend failure after content was forwarded.
func StreamInterruptedError(msg string, err error) *Error {
	return &Error{Kind: KindStreamInterrupted, Message: msg, Err: err}
}

func PersistenceError(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Retryable: true, Err: err}
}

// AsError extracts a structured Error from err. Unclassified errors are
// reported as internal failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr
	}
	switch {
	case errors.Is(err, ErrUnsupportedPlan):
		return ConfigurationError("plan is not configured", err)
	case errors.Is(err, ErrUnauthorized):
		return &Error{Kind: KindAccessDenied, Message: "unauthorized", Err: err}
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return &Error{Kind: kind, Message: sentinel.Error(), Err: err}
		}
	}
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of err, or KindInternal when unclassified.
func KindOf(err error) ErrorKind {
	if derr := AsError(err); derr != nil {
		return derr.Kind
	}
	return ""
}
