package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	RateLimited
	RobotsBlocked
	Fetch
	ExternalLookup
	InsufficientSample
	NotReady
	NotFound
	Conflict
)

func (k Kind) String() string {
	return [...]string{"internal", "validation", "rate_limited", "robots_blocked", "fetch", "external_lookup",
		"insufficient_sample", "not_ready", "not_found", "conflict"}[k]
}

// HTTPStatus maps the kind to the status code returned to API clients.
// ExternalLookup never reaches a client and maps to 500 if it ever does.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case RobotsBlocked:
		return http.StatusForbidden
	case Fetch:
		return http.StatusBadGateway
	case NotReady:
		return http.StatusServiceUnavailable
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
