package agenttask

import (
	"errors"
	"fmt"

	"github.com/briefcase-hq/briefcase/engine/core"
)

var (
	ErrNoActiveTask             = errors.New("no active task")
	ErrRetriesExhausted         = errors.New("maximum retries reached")
	ErrNothingToRetry           = errors.New("no failed start to retry")
	ErrFeedbackAlreadySubmitted = errors.New("feedback already submitted for this task")
	ErrValidation               = errors.New("validation error")
)

// ValidationError is raised locally before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// FollowUpError reports a rejected or failed follow-up message.
type FollowUpError struct {
	TaskID core.ID
	Reason string
	Cause  error
}

func (e *FollowUpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("follow-up failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("follow-up failed: %s", e.Reason)
}

func (e *FollowUpError) Unwrap() error {
	return e.Cause
}

// CancelError reports a failed cancel request. Local state is already cleared.
type CancelError struct {
	TaskID core.ID
	Cause  error
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("cancel request for task %s failed: %v", e.TaskID, e.Cause)
}

func (e *CancelError) Unwrap() error {
	return e.Cause
}

// FeedbackError reports feedback that was rejected locally or by the server.
type FeedbackError struct {
	TaskID core.ID
	Reason string
	Cause  error
}

func (e *FeedbackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("feedback for task %s failed: %s: %v", e.TaskID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("feedback for task %s rejected: %s", e.TaskID, e.Reason)
}

func (e *FeedbackError) Unwrap() error {
	return e.Cause
}

// RetryableError is implemented by transport errors that carry a retry hint.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether err was flagged retryable by the server.
func IsRetryable(err error) bool {
	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}
