package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Login redirect reasons, read by the web app from /login?error=<reason>.
const (
	ReasonInvalidLink = "invalid_link"
	ReasonNotInvited  = "not_invited"
	ReasonServer      = "server_error"
)

// Metadata describes how a code is rendered: as a JSON error for API calls,
// or as a login redirect reason for browser flows such as the e-mailed link.
type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	DetailsAllowed bool
	LoginReason    string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, "validation failed", true, ReasonInvalidLink},
	CodeUnauthorized:  {http.StatusUnauthorized, "authentication required", false, ReasonInvalidLink},
	CodeForbidden:     {http.StatusForbidden, "access denied", false, ReasonNotInvited},
	CodeNotFound:      {http.StatusNotFound, "resource not found", true, ReasonInvalidLink},
	CodeConflict:      {http.StatusConflict, "conflict detected", true, ReasonServer},
	CodeStateConflict: {http.StatusUnprocessableEntity, "state transition disallowed", true, ReasonServer},
	CodeIdempotency:   {http.StatusConflict, "idempotency key reused", true, ReasonServer},
	CodeRateLimit:     {http.StatusTooManyRequests, "rate limit exceeded", false, ReasonServer},
	CodeInternal:      {http.StatusInternalServerError, "internal server error", false, ReasonServer},
	CodeDependency:    {http.StatusServiceUnavailable, "dependency unavailable", false, ReasonServer},
}

// MetadataFor returns the rendering rules for code; unknown codes render as internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns. Values are treated as
// immutable so package-level sentinels can be shared; WithDetails and
// WithReason return copies.
type Error struct {
	code    Code
	message string
	reason  string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.details = details
	return &cp
}

// WithReason overrides the login redirect reason derived from the code.
func (e *Error) WithReason(reason string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.reason = reason
	return &cp
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error with the same code and message, so copies made
// by WithDetails still satisfy errors.Is against their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code && e.message == t.message
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given typed error code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Status maps an error to its HTTP status, defaulting to 500 for untyped errors.
func Status(err error) int {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.Code()).HTTPStatus
	}
	return MetadataFor(CodeInternal).HTTPStatus
}

// LoginReason picks the /login?error= value for a failed browser flow.
func LoginReason(err error) string {
	typed := As(err)
	if typed == nil {
		return ReasonServer
	}
	if typed.reason != "" {
		return typed.reason
	}
	return MetadataFor(typed.code).LoginReason
}
