package tracker

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/pkg/store"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnavailable     = errors.New("unavailable")
)

// Error is a classified tracker failure.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error { return errorf(ErrNotFound, format, args...) }

func forbidden(format string, args ...any) *Error { return errorf(ErrForbidden, format, args...) }

func invalid(format string, args ...any) *Error { return errorf(ErrInvalidArgument, format, args...) }

// fromStore classifies an error coming out of the store. Errors raised by
// tracker callbacks pass through untouched.
func fromStore(err error, what string) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	switch {
	case store.IsNotFound(err):
		return notFound("%s not found", what)
	case store.IsConflict(err):
		return &Error{Kind: ErrInvalidArgument, Message: what + " already exists", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: ErrUnavailable, Message: "request cancelled", Err: err}
	default:
		return &Error{Kind: ErrUnavailable, Message: "store unavailable", Err: err}
	}
}

// Code is the wire name of err's kind, as carried in websocket acks.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "unavailable"
	}
}

// PublicMessage hides wrapped internals of unavailable errors from clients.
func PublicMessage(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Message
	}
	return "internal error"
}
