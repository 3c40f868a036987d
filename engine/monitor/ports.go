package monitor

import (
	"context"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
)

// TaskAPI is the server side of the agent task lifecycle.
type TaskAPI interface {
	StartTask(ctx context.Context, req agenttask.StartRequest) (*agenttask.Task, error)
	CancelTask(ctx context.Context, id core.ID) error
	SendFollowUp(ctx context.Context, id core.ID, message string) error
	// GetActiveTask returns nil without error when no task is active.
	GetActiveTask(ctx context.Context) (*agenttask.Task, error)
	GetRecentTasks(ctx context.Context, limit int) ([]*agenttask.Task, error)
	GetTask(ctx context.Context, id core.ID) (*agenttask.Task, error)
	SubmitFeedback(ctx context.Context, id core.ID, feedback agenttask.Feedback) error
}

// Notifier is told once about every finalized task. It runs on the goroutine
// that finalized the task and must not call back into the Controller.
type Notifier interface {
	TaskFinished(ctx context.Context, task *agenttask.Task, source Source)
}

type NotifierFunc func(ctx context.Context, task *agenttask.Task, source Source)

func (f NotifierFunc) TaskFinished(ctx context.Context, task *agenttask.Task, source Source) {
	f(ctx, task, source)
}
