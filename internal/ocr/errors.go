package ocr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the failure category of an OCR attempt. The kind decides whether
// the orchestrator falls back to the next provider or aborts.
type Kind string

const (
	KindRateLimited     Kind = "RATE_LIMITED"
	KindProviderDown    Kind = "PROVIDER_DOWN"
	KindBillingDisabled Kind = "BILLING_DISABLED"
	KindInvalidKey      Kind = "INVALID_KEY"
	KindBadInput        Kind = "BAD_INPUT"
	KindParseFailed     Kind = "PARSE_FAILED"
)

// retryable reports whether trying the next provider might succeed for this
// kind. Rate limits, outages and account problems are backend-specific;
// bad input and unparseable output will fail identically on every backend.
func (k Kind) retryable() bool {
	switch k {
	case KindRateLimited, KindProviderDown, KindBillingDisabled, KindInvalidKey:
		return true
	default:
		return false
	}
}

// Error is a classified OCR failure. Retryable is derived from Kind at
// construction time and never set independently.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
}

// NewError builds an Error for the given kind with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: kind.retryable(),
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Classify maps an arbitrary provider failure onto the error taxonomy using
// case-insensitive substring matching on its message. Errors that already
// carry a kind are returned unchanged. The precedence order matters: billing
// phrases are checked before the generic rate-limit and 5xx phrases, so a
// message mentioning both is classified as a billing problem.
func Classify(err error) *Error {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged
	}
	msg := err.Error()
	m := strings.ToLower(msg)

	switch {
	case strings.Contains(m, "billing") || strings.Contains(m, "credit") || strings.Contains(m, "insufficient"):
		return NewError(KindBillingDisabled, "%s", msg)
	case strings.Contains(m, "rate limit") || strings.Contains(m, "rate-limit") || strings.Contains(m, "429"):
		return NewError(KindRateLimited, "%s", msg)
	case strings.Contains(m, "503") || strings.Contains(m, "502") || strings.Contains(m, "overloaded"):
		return NewError(KindProviderDown, "%s", msg)
	case (strings.Contains(m, "invalid") && strings.Contains(m, "key")) ||
		strings.Contains(m, "authentication") || strings.Contains(m, "401"):
		return NewError(KindInvalidKey, "%s", msg)
	case strings.Contains(m, "failed to parse") || strings.Contains(m, "invalid receipt format") ||
		strings.Contains(m, "empty response"):
		return NewError(KindParseFailed, "%s", msg)
	default:
		// Unrecognized failures default to retryable: silently giving up
		// is worse than one wasted fallback attempt.
		return NewError(KindProviderDown, "%s", msg)
	}
}
