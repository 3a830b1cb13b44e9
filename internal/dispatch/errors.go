package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrTargetNotFound is returned by single-target publishes when the
	// named target is not registered.
	ErrTargetNotFound = errors.New("publish target not registered")

	// ErrInvalidPayload wraps validation failures surfaced before dispatch.
	ErrInvalidPayload = errors.New("invalid publish payload")

	// ErrNoProvider is returned when a generation call has no adapter to run.
	ErrNoProvider = errors.New("no generation provider configured")
)

// Kind classifies a dispatch failure.
//
// Retryability is derived from the kind and nothing else:
// network, rate_limit and server failures are transient; client and auth
// failures are terminal.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindRateLimit Kind = "rate_limit"
	KindServer    Kind = "server"
	KindClient    Kind = "client"
	KindAuth      Kind = "auth"
	KindUnknown   Kind = "unknown"
)

// Retryable reports whether failures of this kind are worth retrying.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimit, KindServer:
		return true
	default:
		return false
	}
}

// Error is the typed failure every adapter call resolves to.
//
// Adapters build these from their own wire-level error responses (usually via
// FromStatus); the executor classifies whatever raw errors are left over.
type Error struct {
	Kind     Kind
	Provider string
	Message  string

	cause error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the error's kind is transient.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// NewError builds a classified dispatch error.
func NewError(kind Kind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

// WrapError classifies an underlying error without losing it.
func WrapError(kind Kind, provider string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Provider: provider, Message: msg, cause: cause}
}

// FromStatus maps an HTTP-like status code onto an error kind.
//
// Classification table: 401/403 -> auth, 429 -> rate_limit, other 4xx ->
// client, 5xx -> server. Anything else is unknown.
func FromStatus(provider string, status int, message string) *Error {
	var kind Kind
	switch {
	case status == 401 || status == 403:
		kind = KindAuth
	case status == 429:
		kind = KindRateLimit
	case status >= 400 && status < 500:
		kind = KindClient
	case status >= 500:
		kind = KindServer
	default:
		kind = KindUnknown
	}
	if message == "" {
		message = fmt.Sprintf("http status %d", status)
	}
	return &Error{Kind: kind, Provider: provider, Message: message}
}

// Classify normalizes any error into a *Error.
//
// Already-classified errors pass through with the provider name filled in if
// missing. Deadline expiry and transport-level failures classify as network
// (retryable); everything else is unknown.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var de *Error
	if errors.As(err, &de) {
		if de.Provider == "" {
			cp := *de
			cp.Provider = provider
			return &cp
		}
		return de
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapError(KindNetwork, provider, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return WrapError(KindNetwork, provider, err)
	}

	// String matching is a last resort for transport errors that don't
	// implement net.Error (connection resets bubbled through wrappers,
	// DNS failures from third-party SDKs).
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"connection reset", "connection refused", "no such host", "broken pipe", "timeout", "eof"} {
		if strings.Contains(msg, hint) {
			return WrapError(KindNetwork, provider, err)
		}
	}

	return WrapError(KindUnknown, provider, err)
}

// IsRetryable reports whether err should be retried after backoff.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}
