package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/briefcase-hq/briefcase/engine/infra/monitoring"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// State is the connection state of a stream client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

var (
	// ErrReconnectExhausted is returned by Run after the last reconnect attempt failed.
	ErrReconnectExhausted = errors.New("stream: reconnect attempts exhausted")
	ErrAlreadyRunning     = errors.New("stream: client already running")
	errClosedByServer     = errors.New("stream: closed by server")
)

// DialRequest addresses one connection attempt. ReconnectID is empty for the
// first connection and unique for every reconnect.
type DialRequest struct {
	TaskID      core.ID
	ReconnectID string
	Attempt     int
}

type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (Conn, error)
}

type Conn interface {
	Recv() (Message, error)
	Close() error
}

// ReconnectContext describes the reconnect schedule position.
type ReconnectContext struct {
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"maxAttempts"`
	NextDelay   time.Duration `json:"nextDelay"`
}

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Buffer      int
	Clock       clock.Clock
	Metrics     *monitoring.MonitorMetrics
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Buffer:      64,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxAttempts < 0 {
		o.MaxAttempts = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = def.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = def.MaxDelay
	}
	if o.Buffer <= 0 {
		o.Buffer = def.Buffer
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Client owns the single push connection of one task id and reconnects with
// exponential backoff. Connected and heartbeat messages are consumed here;
// every other message is forwarded on Messages in arrival order.
type Client struct {
	taskID core.ID
	dialer Dialer
	opts   Options
	out    chan Message

	running atomic.Bool

	mu        sync.RWMutex
	state     State
	attempt   int
	nextDelay time.Duration
	backoff   retry.Backoff
}

func NewClient(taskID core.ID, dialer Dialer, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		taskID: taskID,
		dialer: dialer,
		opts:   opts,
		out:    make(chan Message, opts.Buffer),
		state:  StateDisconnected,
	}
}

func (c *Client) TaskID() core.ID {
	return c.taskID
}

// Messages is closed when Run returns.
func (c *Client) Messages() <-chan Message {
	return c.out
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) Reconnect() ReconnectContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ReconnectContext{Attempt: c.attempt, MaxAttempts: c.opts.MaxAttempts, NextDelay: c.nextDelay}
}

// Run connects and keeps the stream alive until ctx is done (returns nil) or
// reconnects are exhausted (returns ErrReconnectExhausted). Run may be called once.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	log := logger.FromContext(ctx).With("task_id", c.taskID, "component", "stream")
	defer close(c.out)
	defer c.reset()

	reconnectID := ""
	for {
		if ctx.Err() != nil {
			return nil
		}
		c.setState(StateConnecting)
		err := c.connect(ctx, reconnectID)
		if ctx.Err() != nil {
			return nil
		}
		delay, ok := c.scheduleReconnect()
		if !ok {
			log.Warn("Stream reconnect attempts exhausted, continuing with polling only", "error", err)
			c.opts.Metrics.StreamExhausted(ctx)
			return ErrReconnectExhausted
		}
		attempt := c.Reconnect().Attempt
		log.Debug("Stream dropped, scheduling reconnect", "error", err, "attempt", attempt, "delay", delay)
		c.opts.Metrics.ReconnectScheduled(ctx, attempt, delay)
		if !c.wait(ctx, delay) {
			return nil
		}
		reconnectID = uuid.NewString()
	}
}

func (c *Client) connect(ctx context.Context, reconnectID string) error {
	conn, err := c.dialer.Dial(ctx, DialRequest{
		TaskID:      c.taskID,
		ReconnectID: reconnectID,
		Attempt:     c.Reconnect().Attempt,
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer func() {
		stop()
		_ = conn.Close()
	}()

	c.markConnected(ctx)
	for {
		msg, err := conn.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errClosedByServer
			}
			return fmt.Errorf("recv: %w", err)
		}
		c.opts.Metrics.MessageReceived(ctx, string(msg.Type))
		switch msg.Type {
		case MessageConnected, MessageHeartbeat:
			c.markConnected(ctx)
			continue
		}
		select {
		case c.out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) markConnected(ctx context.Context) {
	c.mu.Lock()
	wasConnected := c.state == StateConnected
	c.state = StateConnected
	c.attempt = 0
	c.nextDelay = 0
	c.backoff = nil
	c.mu.Unlock()
	if !wasConnected {
		c.opts.Metrics.StreamConnected(ctx)
	}
}

// scheduleReconnect moves to StateError and returns the next delay, or moves
// to StateDisconnected when no attempt is left.
func (c *Client) scheduleReconnect() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backoff == nil {
		c.backoff = newBackoff(c.opts)
	}
	delay, stop := c.backoff.Next()
	if stop {
		c.state = StateDisconnected
		c.nextDelay = 0
		return 0, false
	}
	c.attempt++
	c.nextDelay = delay
	c.state = StateError
	return delay, true
}

func (c *Client) wait(ctx context.Context, delay time.Duration) bool {
	timer := c.opts.Clock.Timer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
	c.attempt = 0
	c.nextDelay = 0
	c.backoff = nil
}
