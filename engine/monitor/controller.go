package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/briefcase-hq/briefcase/engine/infra/pubsub"
	"github.com/briefcase-hq/briefcase/engine/monitor/stream"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sethvargo/go-retry"
)

// Dependencies are the collaborators of a Controller. Bus and Notifier are optional.
type Dependencies struct {
	API      TaskAPI
	Dialer   stream.Dialer
	Bus      *pubsub.Bus
	Notifier Notifier
}

// State is a consistent view of the monitor for rendering.
type State struct {
	Snapshot
	TaskID     core.ID                 `json:"taskId,omitempty"`
	Connection stream.State            `json:"connection"`
	Reconnect  stream.ReconnectContext `json:"reconnect"`
	Events     []agenttask.StreamEvent `json:"events,omitempty"`
	Stalled    bool                    `json:"stalled"`
	Polling    bool                    `json:"polling"`
	CanRetry   bool                    `json:"canRetry"`
}

// Controller exposes the task operations and owns the session of the active task.
type Controller struct {
	api      TaskAPI
	dialer   stream.Dialer
	bus      *pubsub.Bus
	notifier Notifier
	opts     Options
	merger   *Merger
	validate *validator.Validate
	feedback *lru.Cache[core.ID, struct{}]

	// mu serializes the operations that replace the active task. State never takes it.
	mu sync.Mutex

	// retryMu guards lastStart and retryAttempt and is never held across I/O.
	retryMu      sync.Mutex
	lastStart    *agenttask.StartRequest
	retryAttempt int

	// sessMu guards session only and is never held while waiting on it.
	sessMu  sync.Mutex
	session *Session
}

func NewController(deps Dependencies, opts Options) (*Controller, error) {
	if deps.API == nil {
		return nil, errors.New("monitor: task API is required")
	}
	if deps.Dialer == nil {
		return nil, errors.New("monitor: stream dialer is required")
	}
	opts = opts.withDefaults()
	feedback, err := lru.New[core.ID, struct{}](opts.FeedbackCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create feedback cache: %w", err)
	}
	c := &Controller{
		api:      deps.API,
		dialer:   deps.Dialer,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		opts:     opts,
		merger:   NewMerger(opts.Clock.Now),
		validate: validator.New(),
		feedback: feedback,
	}
	c.merger.OnFinalize(c.onFinalize)
	return c, nil
}

func (c *Controller) Merger() *Merger {
	return c.merger
}

// Start submits a new task. Goals shorter than the minimum length are rejected
// before any request is made. Retryable failures are retried with a linear
// backoff when auto retry is enabled.
func (c *Controller) Start(ctx context.Context, goal string, opts agenttask.StartOptions) (*agenttask.Task, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, agenttask.NewValidationError("goal", "must not be empty")
	}
	if utf8.RuneCountInString(goal) < c.opts.MinGoalLength {
		return nil, agenttask.NewValidationError(
			"goal", fmt.Sprintf("must be at least %d characters", c.opts.MinGoalLength),
		)
	}
	req := agenttask.StartRequest{Goal: goal, Extended: opts.Extended}

	c.mu.Lock()
	defer c.mu.Unlock()
	task, retries, err := c.submit(ctx, req)
	if err != nil {
		c.retryMu.Lock()
		c.lastStart = &req
		c.retryAttempt = retries
		c.retryMu.Unlock()
		if c.opts.AutoRetry && agenttask.IsRetryable(err) {
			return nil, fmt.Errorf("%w: %w", agenttask.ErrRetriesExhausted, err)
		}
		return nil, err
	}
	return c.activate(ctx, task, true), nil
}

// submit calls startTask, retrying retryable errors when auto retry is on.
// It returns how many retries were spent.
func (c *Controller) submit(ctx context.Context, req agenttask.StartRequest) (*agenttask.Task, int, error) {
	log := logger.FromContext(ctx)
	maxRetries := 0
	if c.opts.AutoRetry {
		maxRetries = c.opts.MaxRetries
	}
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(maxRetries), retry.BackoffFunc(func() (time.Duration, bool) {
		delay := c.opts.RetryBaseDelay * time.Duration(attempt+1)
		attempt++
		return delay, false
	}))
	var task *agenttask.Task
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := c.api.StartTask(ctx, req)
		if err != nil {
			if agenttask.IsRetryable(err) {
				log.Warn("Start request failed, retrying", "attempt", attempt+1, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, attempt, err
	}
	return task, attempt, nil
}

// Retry resubmits the last failed start with identical parameters after a
// linear delay. Each call counts against the retry budget.
func (c *Controller) Retry(ctx context.Context) (*agenttask.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryMu.Lock()
	if c.lastStart == nil {
		c.retryMu.Unlock()
		return nil, agenttask.ErrNothingToRetry
	}
	if c.retryAttempt >= c.opts.MaxRetries {
		c.retryMu.Unlock()
		return nil, agenttask.ErrRetriesExhausted
	}
	req := *c.lastStart
	delay := c.opts.RetryBaseDelay * time.Duration(c.retryAttempt+1)
	c.retryAttempt++
	c.retryMu.Unlock()

	timer := c.opts.Clock.Timer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}
	task, err := c.api.StartTask(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.activate(ctx, task, true), nil
}

// activate tears down any previous session and binds a new one to task.
// Callers hold c.mu.
func (c *Controller) activate(ctx context.Context, task *agenttask.Task, started bool) *agenttask.Task {
	if started {
		task.Status = agenttask.StatusRunning
		c.retryMu.Lock()
		c.lastStart = nil
		c.retryAttempt = 0
		c.retryMu.Unlock()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = c.opts.Clock.Now()
	}
	c.stopSession()
	c.merger.Begin(task)
	sess := newSession(task.ID, sessionConfig{
		api:                c.api,
		dialer:             c.dialer,
		merger:             c.merger,
		stream:             c.opts.Stream,
		poll:               c.opts.Poll,
		stallCheckInterval: c.opts.StallCheckInterval,
		stallThreshold:     c.opts.StallThreshold,
		bufferSize:         c.opts.EventBufferSize,
		clock:              c.opts.Clock,
		metrics:            c.opts.Metrics,
	})
	c.sessMu.Lock()
	c.session = sess
	c.sessMu.Unlock()
	sess.Start(ctx)
	logger.FromContext(ctx).Info("Monitoring task", "task_id", task.ID, "status", task.Status)
	c.bus.Publish(ctx, pubsub.TopicTaskStarted, agenttask.TaskStarted{
		TaskID:   task.ID.String(),
		Goal:     task.Goal,
		Extended: task.Extended,
	})
	return task.Clone()
}

// Resume attaches to the task the server reports as active.
func (c *Controller) Resume(ctx context.Context) (*agenttask.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, err := c.api.GetActiveTask(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch active task: %w", err)
	}
	if task == nil {
		return nil, agenttask.ErrNoActiveTask
	}
	if current := c.merger.Active(); current != nil && current.ID == task.ID {
		return current, nil
	}
	return c.activate(ctx, task, false), nil
}

// Cancel clears the active task and tears its session down before the cancel
// request is sent. The task stays visible as cancelling until the server
// answers. A failed request does not restore the task.
func (c *Controller) Cancel(ctx context.Context) error {
	id, err := c.beginCancel()
	if err != nil {
		return err
	}
	err = c.api.CancelTask(ctx, id)
	c.merger.EndCancel(id)
	if err != nil {
		logger.FromContext(ctx).Warn("Cancel request failed", "task_id", id, "error", err)
		return &agenttask.CancelError{TaskID: id, Cause: err}
	}
	c.bus.Publish(ctx, pubsub.TopicTaskFinished, agenttask.TaskFinished{
		TaskID: id.String(),
		Status: agenttask.StatusCancelled,
		Source: string(SourceLocal),
	})
	return nil
}

func (c *Controller) beginCancel() (core.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.merger.ActiveID()
	if id.IsZero() {
		return "", agenttask.ErrNoActiveTask
	}
	if _, ok := c.merger.BeginCancel(id); !ok {
		return "", agenttask.ErrNoActiveTask
	}
	c.stopSession()
	return id, nil
}

// SendFollowUp sends message to the running active task.
func (c *Controller) SendFollowUp(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	task := c.merger.Active()
	if task == nil {
		return &agenttask.FollowUpError{Reason: "no active task", Cause: agenttask.ErrNoActiveTask}
	}
	if message == "" {
		return &agenttask.FollowUpError{
			TaskID: task.ID,
			Reason: "message is empty",
			Cause:  agenttask.NewValidationError("message", "must not be empty"),
		}
	}
	if task.Status != agenttask.StatusRunning {
		return &agenttask.FollowUpError{TaskID: task.ID, Reason: fmt.Sprintf("task is %s", task.Status)}
	}
	if err := c.api.SendFollowUp(ctx, task.ID, message); err != nil {
		return &agenttask.FollowUpError{TaskID: task.ID, Reason: "request failed", Cause: err}
	}
	return nil
}

// SubmitFeedback rates a completed or failed task. Each task accepts one submission.
func (c *Controller) SubmitFeedback(ctx context.Context, taskID core.ID, fb agenttask.Feedback) error {
	fb.Text = strings.TrimSpace(fb.Text)
	fb.Correction = strings.TrimSpace(fb.Correction)
	if taskID.IsZero() {
		return &agenttask.FeedbackError{Reason: "task id is required", Cause: agenttask.NewValidationError("taskId", "is empty")}
	}
	if !fb.HasContent() {
		return &agenttask.FeedbackError{
			TaskID: taskID,
			Reason: "at least one field is required",
			Cause:  agenttask.NewValidationError("feedback", "is empty"),
		}
	}
	if err := c.validate.Struct(fb); err != nil {
		return &agenttask.FeedbackError{
			TaskID: taskID,
			Reason: "invalid feedback",
			Cause:  fmt.Errorf("%w: %w", agenttask.ErrValidation, err),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedback.Contains(taskID) {
		return &agenttask.FeedbackError{TaskID: taskID, Reason: "duplicate", Cause: agenttask.ErrFeedbackAlreadySubmitted}
	}
	task := c.merger.Find(taskID)
	if task == nil {
		var err error
		if task, err = c.api.GetTask(ctx, taskID); err != nil {
			return &agenttask.FeedbackError{TaskID: taskID, Reason: "task lookup failed", Cause: err}
		}
	}
	if !task.Status.AcceptsFeedback() {
		return &agenttask.FeedbackError{TaskID: taskID, Reason: fmt.Sprintf("task is %s", task.Status)}
	}
	if err := c.api.SubmitFeedback(ctx, taskID, fb); err != nil {
		return &agenttask.FeedbackError{TaskID: taskID, Reason: "request failed", Cause: err}
	}
	c.feedback.Add(taskID, struct{}{})
	return nil
}

// Recent fetches the most recent tasks and keeps them for display.
func (c *Controller) Recent(ctx context.Context, limit int) ([]*agenttask.Task, error) {
	if limit <= 0 {
		limit = c.opts.Poll.RecentLimit
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	tasks, err := c.api.GetRecentTasks(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent tasks: %w", err)
	}
	c.merger.SetRecent(tasks)
	return cloneTasks(tasks), nil
}

// Dismiss drops the active and last-completed tasks locally.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merger.Dismiss()
	c.stopSession()
}

func (c *Controller) State() State {
	c.retryMu.Lock()
	canRetry := c.lastStart != nil && c.retryAttempt < c.opts.MaxRetries
	c.retryMu.Unlock()
	st := State{
		Snapshot:   c.merger.Snapshot(),
		Connection: stream.StateDisconnected,
		CanRetry:   canRetry,
	}
	c.sessMu.Lock()
	sess := c.session
	c.sessMu.Unlock()
	if sess == nil {
		return st
	}
	st.TaskID = sess.TaskID()
	st.Connection = sess.ConnectionState()
	st.Reconnect = sess.Reconnect()
	st.Events = sess.Events()
	st.Stalled = sess.Stalled()
	st.Polling = sess.Polling()
	return st
}

// Close tears down the active session, if any.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopSession()
}

func (c *Controller) stopSession() {
	c.sessMu.Lock()
	sess := c.session
	c.session = nil
	c.sessMu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

// onFinalize runs on the goroutine that finalized the task, which may belong
// to the session being cancelled, so it only signals the session.
func (c *Controller) onFinalize(ctx context.Context, task *agenttask.Task, source Source) {
	ctx = context.WithoutCancel(ctx)
	c.sessMu.Lock()
	if c.session != nil && c.session.TaskID() == task.ID {
		c.session.Cancel()
	}
	c.sessMu.Unlock()

	logger.FromContext(ctx).Info("Task finished",
		"task_id", task.ID, "status", task.Status, "source", source)
	c.opts.Metrics.TaskFinalized(ctx, string(source), string(task.Status))
	if c.notifier != nil {
		c.notifier.TaskFinished(ctx, task, source)
	}
	c.bus.Publish(ctx, pubsub.TopicTaskFinished, agenttask.TaskFinished{
		TaskID: task.ID.String(),
		Status: task.Status,
		Source: string(source),
	})
}
