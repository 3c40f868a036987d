package helpers

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for failures talking to the task API. The command layer maps them
// to exit codes and JSON error codes.
var (
	ErrTimeout = errors.New("task API request timed out")
	ErrNetwork = errors.New("task API unreachable")
	ErrAuth    = errors.New("task API rejected the credentials")
)

// TimeoutError is a request that got no answer within the configured API timeout.
type TimeoutError struct {
	Request string
	Timeout time.Duration
	Cause   error
}

func (e *TimeoutError) Error() string {
	if e.Timeout <= 0 {
		return fmt.Sprintf("%s timed out before the server answered", e.Request)
	}
	return fmt.Sprintf("%s timed out after %s", e.Request, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// NetworkError is a request that never reached the server.
type NetworkError struct {
	Request string
	Cause   error
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot reach task API for %s: %v", e.Request, e.Cause)
	}
	return fmt.Sprintf("cannot reach task API for %s", e.Request)
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "not authorized: " + e.Reason
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// NewTimeoutError reports request as timed out after timeout. A zero timeout
// means the caller's own deadline fired first.
func NewTimeoutError(request string, timeout time.Duration, cause error) error {
	return &TimeoutError{Request: request, Timeout: timeout, Cause: cause}
}

func NewNetworkError(request string, cause error) error {
	return &NetworkError{Request: request, Cause: cause}
}

func NewAuthError(reason string) error {
	return &AuthError{Reason: reason}
}
