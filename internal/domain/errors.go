package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotSetup        = errors.New("context is not setup")
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate")
	ErrCanceled        = errors.New("canceled")
	ErrClosed          = errors.New("session closed")
	ErrInvalid         = errors.New("invalid argument")
	ErrNameTooLong     = errors.New("name too long")
	ErrNameEmpty       = errors.New("name empty")
	ErrMetadataTooLong = errors.New("metadata too long")
	ErrRateLimited     = errors.New("rate limited")
)

// Remote error codes carried on the wire.
const (
	CodeNotFound    = "not_found"
	CodeDuplicate   = "duplicate"
	CodeClosed      = "closed"
	CodeCanceled    = "canceled"
	CodeInvalid     = "invalid"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// RemoteError is a failure reported by the directory. It matches the
// sentinel for its code under errors.Is:
//
//	if errors.Is(err, domain.ErrDuplicate) { ... }
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: %s: %s", e.Code, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	switch e.Code {
	case CodeNotFound:
		return target == ErrNotFound
	case CodeDuplicate:
		return target == ErrDuplicate
	case CodeClosed:
		return target == ErrClosed
	case CodeCanceled:
		return target == ErrCanceled
	case CodeInvalid:
		return target == ErrInvalid
	case CodeRateLimited:
		return target == ErrRateLimited
	}
	return false
}

// IsRemoteError checks whether err is a *RemoteError with the given code.
func IsRemoteError(err error, code string) bool {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Code == code
	}
	return false
}

// CodeOf maps an error to its wire code.
func CodeOf(err error) string {
	var remoteErr *RemoteError
	switch {
	case errors.As(err, &remoteErr):
		return remoteErr.Code
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicate):
		return CodeDuplicate
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrCanceled):
		return CodeCanceled
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrInvalid),
		errors.Is(err, ErrNameTooLong),
		errors.Is(err, ErrNameEmpty),
		errors.Is(err, ErrMetadataTooLong):
		return CodeInvalid
	}
	return CodeInternal
}

// AsRemote converts any error into the wire form.
func AsRemote(err error) *RemoteError {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr
	}
	return &RemoteError{Code: CodeOf(err), Message: err.Error()}
}
