package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bmatcuk/doublestar"
	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/backend"
)

// Kind classifies an error for the wire.
type Kind int

const (
	KindBackendFailure Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindMethodNotAllowed:
		return "MethodNotAllowed"
	default:
		return "BackendFailure"
	}
}

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified gateway error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Translate classifies any pipeline error.
//
// Classification:
//   - *Error: returned as is
//   - ErrTruncated, backend.ErrInvalidArgument, bad glob: BadRequest
//   - auth.ErrUnauthenticated: Unauthorized
//   - backend.ErrPermissionDenied: Forbidden
//   - backend.ErrNotFound: NotFound
//   - other backend sentinels: BackendFailure carrying the error text
//   - anything else: BackendFailure with a generic message; the cause stays
//     in Err for logging and never reaches the client
func Translate(err error) *Error {
	if err == nil {
		return nil
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	kind := KindBackendFailure
	switch {
	case errors.Is(err, ErrTruncated),
		errors.Is(err, backend.ErrInvalidArgument),
		errors.Is(err, doublestar.ErrBadPattern):
		kind = KindBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		kind = KindUnauthorized
	case errors.Is(err, backend.ErrPermissionDenied):
		kind = KindForbidden
	case errors.Is(err, backend.ErrNotFound):
		kind = KindNotFound
	}

	msg := err.Error()
	if kind == KindBackendFailure && !isBackendSentinel(err) {
		msg = backendFailureMessage
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// backendFailureMessage replaces unclassified error text, which may carry
// store endpoints or request ids.
const backendFailureMessage = "backend I/O error"

func isBackendSentinel(err error) bool {
	for _, target := range []error{
		backend.ErrAlreadyExists,
		backend.ErrNotEmpty,
		backend.ErrNotDirectory,
		backend.ErrIsDirectory,
		backend.ErrClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
