// Package apperr defines the tagged error kinds shared by the lottery
// service, the upstream client and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Kind is the top-level classification of an error.
type Kind string

const (
	// KindValidation marks malformed caller input.
	KindValidation Kind = "validation"

	// KindNotFound marks a resource that does not exist.
	KindNotFound Kind = "not_found"

	// KindRateLimit marks a rejected request because of inbound rate limiting.
	KindRateLimit Kind = "rate_limit"

	// KindExternal marks a failure of the upstream lottery API.
	KindExternal Kind = "external"

	// KindInternal marks everything else.
	KindInternal Kind = "internal"
)

// Reason refines KindExternal errors.
type Reason string

const (
	ReasonBadStatus  Reason = "bad_status"
	ReasonBadPayload Reason = "bad_payload"
	ReasonNetwork    Reason = "network"
	ReasonTimeout    Reason = "timeout"
)

// Error codes exposed in the JSON error envelope.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "RESOURCE_NOT_FOUND"
	CodeRateLimit   = "RATE_LIMIT_EXCEEDED"
	CodeExternal    = "EXTERNAL_API_ERROR"
	CodeTimeout     = "EXTERNAL_API_TIMEOUT"
	CodeInternal    = "INTERNAL_SERVER_ERROR"
	maxBodyExcerpt = 200
)

// Context is the uniform payload attached to every error.
type Context struct {
	Operation      string `json:"operation,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	URL            string `json:"url,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
	Body           string `json:"body,omitempty"`
	Field          string `json:"field,omitempty"`
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Context Context
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Reason != "" {
		prefix += "/" + string(e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code the error is reported with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternal:
		if e.Reason == ReasonTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine readable error code.
func (e *Error) Code() string {
	switch e.Kind {
	case KindValidation:
		return CodeValidation
	case KindNotFound:
		return CodeNotFound
	case KindRateLimit:
		return CodeRateLimit
	case KindExternal:
		if e.Reason == ReasonTimeout {
			return CodeTimeout
		}
		return CodeExternal
	default:
		return CodeInternal
	}
}

// Validation returns a validation error for the named field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Context: Context{Field: field}}
}

// NotFound returns a not-found error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// RateLimited returns a rate-limit error.
func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimit, Message: message}
}

// External returns an upstream failure with the given reason.
func External(reason Reason, message string, ctx Context, err error) *Error {
	ctx.Body = Truncate(ctx.Body, maxBodyExcerpt)
	return &Error{Kind: KindExternal, Reason: reason, Message: message, Context: ctx, Err: err}
}

// Internal wraps err as an internal error.
func Internal(message string, ctx Context, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Context: ctx, Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus maps any error to a status code. Untagged errors are 500.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
