package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/briefcase-hq/briefcase/engine/infra/monitoring"
	"github.com/briefcase-hq/briefcase/engine/monitor/stream"
	"github.com/briefcase-hq/briefcase/pkg/logger"
)

type sessionConfig struct {
	api                TaskAPI
	dialer             stream.Dialer
	merger             *Merger
	stream             stream.Options
	poll               PollOptions
	stallCheckInterval time.Duration
	stallThreshold     time.Duration
	bufferSize         int
	clock              clock.Clock
	metrics            *monitoring.MonitorMetrics
}

// Session owns every goroutine, connection and timer bound to one task id.
// It is created when the id is assigned and stopped when the id is cleared.
type Session struct {
	taskID core.ID
	merger *Merger
	client *stream.Client
	poller *PollWatcher
	stall  *StallDetector
	buffer *EventBuffer
	cfg    sessionConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func newSession(taskID core.ID, cfg sessionConfig) *Session {
	streamOpts := cfg.stream
	streamOpts.Clock = cfg.clock
	streamOpts.Metrics = cfg.metrics
	pollOpts := cfg.poll
	pollOpts.Clock = cfg.clock
	pollOpts.Metrics = cfg.metrics
	return &Session{
		taskID: taskID,
		merger: cfg.merger,
		client: stream.NewClient(taskID, cfg.dialer, streamOpts),
		poller: NewPollWatcher(cfg.api, cfg.merger, taskID, pollOpts),
		stall:  NewStallDetector(cfg.stallThreshold),
		buffer: NewEventBuffer(cfg.bufferSize),
		cfg:    cfg,
	}
}

func (s *Session) TaskID() core.ID {
	return s.taskID
}

// Start launches the stream client, its consumer, the poll watcher and the
// stall loop. The session outlives a cancelled caller context; only Cancel or
// Stop end it.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	// the stall window opens at session start, not at the first check
	if task := s.merger.Active(); task != nil && task.ID == s.taskID {
		s.stall.Observe(s.cfg.clock.Now(), task.Status, task.Progress)
	}
	ctx = logger.ContextWithLogger(
		context.WithoutCancel(ctx),
		logger.FromContext(ctx).With("task_id", s.taskID),
	)
	ctx, s.cancel = context.WithCancel(ctx)
	s.cfg.metrics.SessionStarted(ctx)
	s.wg.Add(4)
	go s.runStream(ctx)
	go s.consume(ctx)
	go func() {
		defer s.wg.Done()
		s.poller.Run(ctx)
	}()
	go s.runStallLoop(ctx)
}

// Cancel signals every goroutine to exit without waiting.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Stop cancels the session and waits until nothing it started is running.
// A stopped session cannot be restarted.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	if !started {
		return
	}
	s.wg.Wait()
	s.cfg.metrics.SessionStopped(context.Background())
}

func (s *Session) runStream(ctx context.Context) {
	defer s.wg.Done()
	err := s.client.Run(ctx)
	if errors.Is(err, stream.ErrReconnectExhausted) {
		logger.FromContext(ctx).Info("Continuing in poll-only mode")
	}
}

func (s *Session) consume(ctx context.Context) {
	defer s.wg.Done()
	log := logger.FromContext(ctx)
	for msg := range s.client.Messages() {
		if ctx.Err() != nil {
			continue
		}
		if err := s.handle(ctx, msg); err != nil {
			log.Warn("Dropping malformed stream message", "type", msg.Type, "error", err)
		}
	}
}

func (s *Session) handle(ctx context.Context, msg stream.Message) error {
	switch msg.Type {
	case stream.MessageHistory:
		h, err := msg.History()
		if err != nil {
			return err
		}
		s.buffer.MergeHistory(h.Events, h.IsReconnection)
	case stream.MessageEvent:
		ev, err := msg.Event()
		if err != nil {
			return err
		}
		s.buffer.Append(ev)
	case stream.MessageProgress:
		u, err := msg.Progress()
		if err != nil {
			return err
		}
		s.merger.ApplyProgress(s.taskID, u)
	case stream.MessageTaskComplete:
		s.merger.Complete(ctx, s.taskID, msg.Summary())
	default:
		logger.FromContext(ctx).Debug("Ignoring unknown stream message", "type", msg.Type)
	}
	return nil
}

func (s *Session) runStallLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.stallCheckInterval
	if interval <= 0 {
		interval = DefaultStallCheckInterval
	}
	ticker := s.cfg.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkStall(ctx)
		}
	}
}

func (s *Session) checkStall(ctx context.Context) {
	task := s.merger.Active()
	if task == nil || task.ID != s.taskID {
		s.stall.Reset()
		return
	}
	if s.stall.Observe(s.cfg.clock.Now(), task.Status, task.Progress) {
		snap, _ := s.stall.Snapshot()
		logger.FromContext(ctx).Warn("Task appears stalled",
			"step", snap.Step, "percent", snap.Percent, "since", snap.CheckedAt)
		s.cfg.metrics.StallDetected(ctx)
	}
}

func (s *Session) ConnectionState() stream.State {
	return s.client.State()
}

func (s *Session) Reconnect() stream.ReconnectContext {
	return s.client.Reconnect()
}

func (s *Session) Events() []agenttask.StreamEvent {
	return s.buffer.Events()
}

func (s *Session) Stalled() bool {
	return s.stall.IsStalled()
}

func (s *Session) Polling() bool {
	return s.poller.Polling()
}
