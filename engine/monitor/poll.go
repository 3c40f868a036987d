package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/briefcase-hq/briefcase/engine/infra/monitoring"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	"github.com/slok/goresilience"
	"github.com/slok/goresilience/timeout"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 2500 * time.Millisecond
	DefaultRecentLimit  = 5
)

type PollOptions struct {
	Interval    time.Duration
	Timeout     time.Duration
	RecentLimit int
	Clock       clock.Clock
	Metrics     *monitoring.MonitorMetrics
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// PollWatcher is the authoritative liveness observer for one task id. When the
// server stops reporting the id as active it fetches the final record and
// finalizes it through the merger.
type PollWatcher struct {
	api     TaskAPI
	merger  *Merger
	taskID  core.ID
	opts    PollOptions
	runner  goresilience.Runner
	polling atomic.Bool
}

func NewPollWatcher(api TaskAPI, merger *Merger, taskID core.ID, opts PollOptions) *PollWatcher {
	opts = opts.withDefaults()
	return &PollWatcher{
		api:    api,
		merger: merger,
		taskID: taskID,
		opts:   opts,
		runner: goresilience.RunnerChain(
			timeout.NewMiddleware(timeout.Config{Timeout: opts.Timeout}),
		),
	}
}

func (w *PollWatcher) Polling() bool {
	return w.polling.Load()
}

// Run ticks until ctx is done. Tick errors are logged and the next tick retries.
func (w *PollWatcher) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With("task_id", w.taskID, "component", "poll")
	w.polling.Store(true)
	defer w.polling.Store(false)
	ticker := w.opts.Clock.Ticker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
				log.Debug("Poll failed", "error", err)
			}
		}
	}
}

// Tick performs one poll round.
func (w *PollWatcher) Tick(ctx context.Context) (err error) {
	start := w.opts.Clock.Now()
	defer func() {
		w.opts.Metrics.PollCompleted(ctx, w.opts.Clock.Now().Sub(start), err)
	}()

	active, err := fetch(ctx, w.runner, w.api.GetActiveTask)
	if err != nil {
		return fmt.Errorf("fetch active task: %w", err)
	}
	recent, recentErr := fetch(ctx, w.runner, func(ctx context.Context) ([]*agenttask.Task, error) {
		return w.api.GetRecentTasks(ctx, w.opts.RecentLimit)
	})
	if recentErr == nil {
		w.merger.SetRecent(recent)
	}

	if active != nil && active.ID == w.taskID {
		w.merger.ApplyTask(active)
		return wrapRecentErr(recentErr)
	}
	if w.merger.ActiveID() != w.taskID {
		// already finalized or cleared elsewhere
		return wrapRecentErr(recentErr)
	}
	final, err := fetch(ctx, w.runner, func(ctx context.Context) (*agenttask.Task, error) {
		return w.api.GetTask(ctx, w.taskID)
	})
	if err != nil {
		return fmt.Errorf("fetch final record of %s: %w", w.taskID, err)
	}
	w.merger.Finalize(ctx, w.taskID, final, SourcePoll)
	return wrapRecentErr(recentErr)
}

func wrapRecentErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("fetch recent tasks: %w", err)
}

// fetch runs fn through runner. The result is only read once fn has returned.
func fetch[T any](ctx context.Context, runner goresilience.Runner, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := runner.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
