package sessionx

import (
	"errors"
	"fmt"
)

// ErrorCode represents session and pipeline error categories.
type ErrorCode string

const (
	ErrCodeMalformedToken  ErrorCode = "malformed_token"
	ErrCodeExpired         ErrorCode = "token_expired"
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	ErrCodeUnauthorized    ErrorCode = "unauthorized"
	ErrCodeDomain          ErrorCode = "domain_error"
	ErrCodeTransport       ErrorCode = "transport_error"
	ErrCodeInvalidToken    ErrorCode = "invalid_token"
	ErrCodeStorage         ErrorCode = "storage_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeMalformedToken:  "Malformed token",
	ErrCodeExpired:         "Session expired, please log in again",
	ErrCodeUnauthenticated: "Please log in first",
	ErrCodeUnauthorized:    "Unauthorized",
	ErrCodeDomain:          "Request failed",
	ErrCodeTransport:       "Network error",
	ErrCodeInvalidToken:    "Invalid token",
	ErrCodeStorage:         "Credential storage failure",
}

var (
	// ErrRouteNotFound is returned when a path matches no declared route.
	ErrRouteNotFound = errors.New("route not found")
	// ErrRedirectLoop is returned when navigation keeps redirecting.
	ErrRedirectLoop = errors.New("too many redirects")
	// ErrNoAuthenticator is returned by Manager calls that need a backend.
	ErrNoAuthenticator = errors.New("no authenticator configured")
	// ErrEmptyToken is returned when a login response carries no token.
	ErrEmptyToken = errors.New("login response did not include a token")
)

// Error wraps session errors with a stable code and a human-readable message.
// Message is what the user is shown; Err keeps the underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	Status  int
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil || e.Err.Error() == base {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the failure requires re-authentication.
func (e *Error) Unauthorized() bool {
	return e.Code == ErrCodeUnauthorized || e.Code == ErrCodeExpired || e.Code == ErrCodeUnauthenticated
}

func newError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Message: DefaultMessage(code), Err: err}
}

// withMessage builds an error whose user-facing message is msg, or the default
// message for code when msg is empty.
func withMessage(code ErrorCode, msg string, err error) *Error {
	if msg == "" {
		msg = DefaultMessage(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// DefaultMessage returns the fallback message for code.
func DefaultMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return string(code)
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool {
	e, ok := AsError(err)
	return ok && e.Unauthorized()
}
