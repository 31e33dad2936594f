package core

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/wirenote/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeForbidden     = "forbidden"
	ErrCodeConflict      = "conflict"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeOutsideWindow = "outside_access_window"
	ErrCodeThreadInvalid = "thread_invalid"
	ErrCodeInternal      = "internal"
	ErrCodeAccountGone   = "account_deleted"
)

var (
	ErrEmptyContent   = errors.New("message content is empty")
	ErrParentNotFound = errors.New("parent message not found")
	ErrThreadTooDeep  = errors.New("thread depth limit exceeded")
	ErrThreadCycle    = errors.New("thread contains a cycle")
	ErrForbidden      = errors.New("not allowed for this user")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ToCoreError classifies err into a wire-visible error.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrParentNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return coreError(ErrCodeForbidden, err.Error())
	case errors.Is(err, store.ErrConflict):
		return coreError(ErrCodeConflict, err.Error())
	case errors.Is(err, ErrThreadTooDeep), errors.Is(err, ErrThreadCycle):
		return coreError(ErrCodeThreadInvalid, err.Error())
	case errors.Is(err, ErrEmptyContent), errors.Is(err, store.ErrConstraint):
		return coreError(ErrCodeBadRequest, err.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}

// AccountDeleted is sent to the live sessions of a removed account.
func AccountDeleted() *CoreError {
	return coreError(ErrCodeAccountGone, "account deleted")
}

func threadTooDeep(limit int) error {
	return fmt.Errorf("%w: limit %d", ErrThreadTooDeep, limit)
}
