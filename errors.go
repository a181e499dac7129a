package authcore

import (
	"errors"
	"fmt"
)

// ErrorKind is the error taxonomy. Every error the engine returns to a
// caller carries exactly one kind.
type ErrorKind uint8

const (
	// KindUnauthorized covers bad credentials, bad/expired/mismatched
	// tokens, and invalid sessions. The message is always generic and never
	// reveals which check failed.
	KindUnauthorized ErrorKind = iota + 1
	// KindBadRequest covers policy violations, duplicate registration,
	// already-verified, and malformed input.
	KindBadRequest
	// KindThrottled carries a retry-after in seconds.
	KindThrottled
	// KindNotFound is used only for authenticated self-lookups where the
	// subject genuinely vanished, never for enumeration-sensitive lookups.
	KindNotFound
	// KindInternal masks unexpected failures; detail stays server-side.
	KindInternal
)

// Error is the structured error type returned across the engine boundary.
// Code and Message are caller-visible; the wrapped cause, if any, is for
// server-side logging only.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	RetryAfter int // seconds, KindThrottled only

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on kind and code so sentinels compare regardless of per-call
// fields like RetryAfter or the wrapped cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Code == other.Code
}

// Sentinel errors. Login failures share one value so the payload is
// bit-for-bit identical whether the email was unknown, the account had no
// password, or the password was wrong.
var (
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Code: "INVALID_CREDENTIALS", Message: "Invalid email or password"}
	ErrInvalidToken       = &Error{Kind: KindUnauthorized, Code: "INVALID_TOKEN", Message: "Invalid or expired token"}
	ErrInvalidSession     = &Error{Kind: KindUnauthorized, Code: "INVALID_SESSION", Message: "Invalid or expired token"}
	ErrEmailTaken         = &Error{Kind: KindBadRequest, Code: "EMAIL_TAKEN", Message: "Email already registered"}
	ErrAlreadyVerified    = &Error{Kind: KindBadRequest, Code: "ALREADY_VERIFIED", Message: "Email is already verified"}
	ErrThrottled          = &Error{Kind: KindThrottled, Code: "RATE_LIMITED", Message: "Too many attempts, please try again later"}
	ErrSubjectGone        = &Error{Kind: KindNotFound, Code: "ACCOUNT_NOT_FOUND", Message: "Account no longer exists"}
	ErrInternal           = &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "Internal server error"}
)

// NewThrottled returns a throttle error carrying the seconds until the
// window resets. errors.Is(err, ErrThrottled) matches it.
func NewThrottled(retryAfter int) *Error {
	return &Error{
		Kind:       KindThrottled,
		Code:       ErrThrottled.Code,
		Message:    ErrThrottled.Message,
		RetryAfter: retryAfter,
	}
}

// NewValidationError reports a policy or input violation with a
// caller-visible message enumerating the rule.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindBadRequest, Code: "VALIDATION_ERROR", Message: message}
}

// newInternalError wraps an unexpected failure. The cause is logged
// server-side; callers see only the generic message.
func newInternalError(cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    ErrInternal.Code,
		Message: ErrInternal.Message,
		cause:   cause,
	}
}
