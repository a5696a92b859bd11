package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbiddenOrigin
	KindNotFound
	KindRateLimited
	KindUnsupportedFileType
	KindFileTooLarge
	KindInvalidPath
	KindServerMisconfigured
	KindConflict
)

var kindNames = map[Kind]string{
	KindInternal:            "Internal",
	KindValidation:          "ValidationError",
	KindUnauthenticated:     "Unauthenticated",
	KindForbiddenOrigin:     "ForbiddenOrigin",
	KindNotFound:            "NotFound",
	KindRateLimited:         "RateLimited",
	KindUnsupportedFileType: "UnsupportedFileType",
	KindFileTooLarge:        "FileTooLarge",
	KindInvalidPath:         "InvalidPath",
	KindServerMisconfigured: "ServerMisconfigured",
	KindConflict:            "Conflict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindUnsupportedFileType, KindFileTooLarge:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbiddenOrigin, KindInvalidPath:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type crossing package boundaries.
type Error struct {
	Kind    Kind
	Message string            // user-facing
	Fields  map[string]string // per-field validation failures
	ResetAt time.Time         // RateLimited only
	Limit   int               // RateLimited only
	Err     error             // internal cause, logged only
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an internal cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func NotFound(message string) *Error {
	if message == "" {
		message = "resource not found"
	}
	return New(KindNotFound, message)
}

func Unauthenticated(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(KindUnauthenticated, message)
}

func ForbiddenOrigin() *Error {
	return New(KindForbiddenOrigin, "Invalid request origin")
}

func RateLimited(message string, limit int, resetAt time.Time) *Error {
	return &Error{Kind: KindRateLimited, Message: message, Limit: limit, ResetAt: resetAt}
}

func Misconfigured(message string) *Error {
	return New(KindServerMisconfigured, message)
}

func Internal(err error) *Error {
	return Wrap(KindInternal, "Internal server error", err)
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
