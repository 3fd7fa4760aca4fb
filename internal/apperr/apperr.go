// Package apperr defines the error taxonomy shared by the payment engine.
// Validation and configuration errors are resolved before any gateway
// contact; gateway errors carry the processor's message and code verbatim.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Validation    Kind = "validation"
	NotFound      Kind = "not_found"
	Gateway       Kind = "gateway"
	Configuration Kind = "configuration"
	Signature     Kind = "signature"
	Conflict      Kind = "conflict"
	Internal      Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Code    string // processor error code, gateway errors only
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

func Configurationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Configuration, Message: fmt.Sprintf(format, args...)}
}

func Signaturef(format string, args ...interface{}) *Error {
	return &Error{Kind: Signature, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: Conflict, Message: fmt.Sprintf(format, args...)}
}

// GatewayErr wraps a processor failure. Message and code are surfaced to the
// caller for display, never retried here.
func GatewayErr(code, message string, err error) *Error {
	return &Error{Kind: Gateway, Code: code, Message: message, Err: err}
}

// Wrap marks an unexpected internal failure.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Internal, Message: "unexpected error", Err: err}
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	if ae, ok := As(err); ok {
		return ae.Kind == kind
	}
	return false
}

// HTTPStatus maps an error to the status the HTTP layer should respond with.
func HTTPStatus(err error) int {
	ae, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case Validation, Gateway:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case Signature:
		return http.StatusBadRequest
	case Configuration:
		return http.StatusServiceUnavailable
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the caller-safe message for err.
func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.Message != "" {
		return ae.Message
	}
	return "an unexpected error occurred"
}
