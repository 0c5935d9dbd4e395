// Package apperr is the user-facing error taxonomy of the API.
//
// Services return *Error values (or wrap them); handlers render them with
// Write. Only Code, Message and RetryAfter ever reach the caller, the wrapped
// cause is logged.
package apperr

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindPrecondition    Kind = "precondition_failed"
	KindConflict        Kind = "conflict"
	KindRateLimited     Kind = "rate_limited"
	KindExternal        Kind = "external_dependency"
	KindInconsistent    Kind = "inconsistent"
	KindInternal        Kind = "internal"
)

type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New returns an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause (with stack) to a new taxonomy error.
func Wrap(cause error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: errors.WithStack(cause)}
}

func Validation(code, message string) *Error { return New(KindValidation, code, message) }

func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, "unauthenticated", message)
}

func Forbidden(code, message string) *Error { return New(KindForbidden, code, message) }

func NotFound(code, message string) *Error { return New(KindNotFound, code, message) }

func Precondition(code, message string) *Error { return New(KindPrecondition, code, message) }

func Conflict(code, message string) *Error { return New(KindConflict, code, message) }

// RateLimited is a conflict the caller can resolve by waiting retryAfter.
func RateLimited(code, message string, retryAfter time.Duration) *Error {
	e := New(KindRateLimited, code, message)
	e.RetryAfter = retryAfter
	return e
}

func External(cause error, code, message string) *Error {
	return Wrap(cause, KindExternal, code, message)
}

func Inconsistent(cause error, code, message string) *Error {
	return Wrap(cause, KindInconsistent, code, message)
}

func Internal(cause error) *Error {
	return Wrap(cause, KindInternal, "internal", "internal error")
}

// From extracts the taxonomy error from err. Anything unclassified is internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPrecondition, KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type body struct {
	Error payload `json:"error"`
}

type payload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// RetryAfterSeconds rounds d up to whole seconds, at least 1.
func RetryAfterSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// Write renders err as a JSON error body and logs server-side failures.
func Write(w http.ResponseWriter, log *zap.Logger, err error) {
	e := From(err)
	status := HTTPStatus(e.Kind)
	if log != nil {
		if status >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("code", e.Code), zap.String("kind", string(e.Kind)), zap.Error(err))
		} else {
			log.Debug("request rejected", zap.String("code", e.Code), zap.String("kind", string(e.Kind)), zap.Error(err))
		}
	}
	p := payload{Code: e.Code, Message: e.Message}
	if e.RetryAfter > 0 {
		p.RetryAfter = RetryAfterSeconds(e.RetryAfter)
		w.Header().Set("Retry-After", strconv.FormatInt(p.RetryAfter, 10))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body{Error: p})
}
