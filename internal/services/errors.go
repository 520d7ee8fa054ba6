package services

import (
	"errors"
	"fmt"

	"greendrake/haggle/internal/negotiation"
)

// Error kinds. Handlers map these to HTTP statuses with errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrAlreadyPaid  = errors.New("already paid")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal error")

	ErrInvalidAmount     = negotiation.ErrInvalidAmount
	ErrInvalidTransition = negotiation.ErrInvalidTransition
)

// Error is a domain error of a given kind with a message safe to show to the caller.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// internalError wraps a store or provider failure. The cause stays out of Message.
func internalError(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// asDomainError turns negotiation errors into *Error so their message reaches the caller.
func asDomainError(err error) error {
	var domainErr *Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, negotiation.ErrInvalidAmount):
		return &Error{Kind: ErrInvalidAmount, Message: err.Error(), Err: err}
	case errors.Is(err, negotiation.ErrInvalidTransition):
		return &Error{Kind: ErrInvalidTransition, Message: err.Error(), Err: err}
	}
	return err
}
