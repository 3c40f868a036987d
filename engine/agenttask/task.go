package agenttask

import (
	"time"

	"github.com/briefcase-hq/briefcase/engine/core"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusCancelling is a client-only label shown while a cancel request is in flight.
	StatusCancelling Status = "cancelling"
)

// Rank orders statuses along pending -> running -> terminal.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning, StatusCancelling:
		return 1
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 2
	default:
		return -1
	}
}

func (s Status) IsTerminal() bool {
	return s.Rank() == 2
}

func (s Status) IsValid() bool {
	return s.Rank() >= 0
}

// IsServerStatus reports whether s may appear in a server payload.
func (s Status) IsServerStatus() bool {
	return s.IsValid() && s != StatusCancelling
}

// CanTransitionTo reports whether moving from s to next keeps status monotonic.
// Terminal states are final; the same status is always accepted.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next.Rank() >= s.Rank()
}

// AcceptsFeedback reports whether a task in this status can be rated.
func (s Status) AcceptsFeedback() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Progress struct {
	Percent        int    `json:"percent"`
	CurrentStep    string `json:"currentStep"`
	IterationCount int    `json:"iterationCount"`
	TotalSteps     *int   `json:"totalSteps,omitempty"`
	CompletedSteps *int   `json:"completedSteps,omitempty"`
}

// ProgressUpdate carries the subset of progress fields present in one message.
type ProgressUpdate struct {
	Percent        *int    `json:"percent,omitempty"`
	CurrentStep    *string `json:"currentStep,omitempty"`
	IterationCount *int    `json:"iterationCount,omitempty"`
	TotalSteps     *int    `json:"totalSteps,omitempty"`
	CompletedSteps *int    `json:"completedSteps,omitempty"`
	Status         *Status `json:"status,omitempty"`
}

// IsEmpty reports whether the update carries no field at all.
func (u ProgressUpdate) IsEmpty() bool {
	return u.Percent == nil && u.CurrentStep == nil && u.IterationCount == nil &&
		u.TotalSteps == nil && u.CompletedSteps == nil && u.Status == nil
}

type Result struct {
	Summary string `json:"summary,omitempty"`
}

type Task struct {
	ID          core.ID    `json:"id"`
	Goal        string     `json:"goal"`
	Status      Status     `json:"status"`
	Progress    Progress   `json:"progress"`
	Result      Result     `json:"result"`
	Error       string     `json:"error,omitempty"`
	Extended    bool       `json:"extended,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Progress.TotalSteps = cloneInt(t.Progress.TotalSteps)
	out.Progress.CompletedSteps = cloneInt(t.Progress.CompletedSteps)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// ClampPercent bounds p to the 0-100 range.
func ClampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// StartOptions are the parameters of a start request besides the goal.
type StartOptions struct {
	Extended bool `json:"extended"`
}

type StartRequest struct {
	Goal     string `json:"goal"`
	Extended bool   `json:"extended"`
}

type Feedback struct {
	Rating     *int   `json:"rating,omitempty"     validate:"omitempty,min=1,max=5"`
	Text       string `json:"feedback,omitempty"   validate:"max=4000"`
	Correction string `json:"correction,omitempty" validate:"max=4000"`
}

// HasContent reports whether at least one field carries a value.
func (f Feedback) HasContent() bool {
	return f.Rating != nil || f.Text != "" || f.Correction != ""
}
