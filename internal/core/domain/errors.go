package domain

import (
	"context"
	"errors"
)

var (
	ErrRunNotFound  = errors.New("query run not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
	ErrUnavailable  = errors.New("upstream unavailable")
)

// OpError ties a failure to the pipeline operation that produced it and to
// one of the sentinel kinds above. errors.Is matches both the kind and the
// cause.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: operation, Kind: kind, Err: err}
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf returns a short label for logs and tool replies.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRunNotFound):
		return "not_found"
	case errors.Is(err, ErrTemporary):
		return "temporary"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
