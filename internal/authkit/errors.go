package authkit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUserNotFound indicates no user matched the lookup.
	ErrUserNotFound = errors.New("credential_store.user_not_found")
	// ErrUserExists indicates the email is already registered.
	ErrUserExists = errors.New("credential_store.user_exists")
	// ErrRoleNotFound indicates the role is unknown to the credential store.
	ErrRoleNotFound = errors.New("credential_store.role_not_found")
	// ErrSessionNotFound indicates the session id is unknown or expired.
	ErrSessionNotFound = errors.New("session_registry.not_found")
	// ErrInvalidToken collapses every token verification failure.
	ErrInvalidToken = errors.New("token.invalid")
	// ErrRevocationUnavailable indicates the revocation registry could not be reached.
	ErrRevocationUnavailable = errors.New("revocation.unavailable")
	// ErrRateLimiterUnavailable indicates the rate limiter backend could not be reached.
	ErrRateLimiterUnavailable = errors.New("ratelimit.unavailable")
)

// ErrorKind classifies failures for transport mapping.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindConflict       ErrorKind = "conflict"
	KindRateLimited    ErrorKind = "rate_limited"
	KindNotFound       ErrorKind = "not_found"
	KindDependency     ErrorKind = "dependency"
)

// Error is a classified business failure carrying a caller-facing message.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (failure *Error) Error() string {
	if failure.Err == nil {
		return fmt.Sprintf("%s: %s", failure.Kind, failure.Message)
	}
	return fmt.Sprintf("%s: %s: %v", failure.Kind, failure.Message, failure.Err)
}

func (failure *Error) Unwrap() error {
	return failure.Err
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, minimum one.
func (failure *Error) RetryAfterSeconds() int {
	return retryAfterSeconds(failure.RetryAfter)
}

func NewValidationError(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: cause}
}

func NewAuthenticationError(message string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Err: cause}
}

func NewAuthorizationError(message string, cause error) *Error {
	return &Error{Kind: KindAuthorization, Message: message, Err: cause}
}

func NewConflictError(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: cause}
}

func NewNotFoundError(message string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: cause}
}

func NewDependencyError(message string, cause error) *Error {
	return &Error{Kind: KindDependency, Message: message, Err: cause}
}

func NewRateLimitedError(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// KindOf reports the classification of err, or KindDependency for unclassified errors.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindDependency
}

// MessageOf reports the caller-facing message of err.
func MessageOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Message
	}
	return "Internal server error"
}

func retryAfterSeconds(duration time.Duration) int {
	if duration <= 0 {
		return 1
	}
	seconds := int((duration + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
