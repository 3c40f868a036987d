package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/briefcase-hq/briefcase/engine/monitor/stream"
)

type retryableErr struct {
	msg       string
	retryable bool
}

func (e *retryableErr) Error() string     { return e.msg }
func (e *retryableErr) IsRetryable() bool { return e.retryable }

type fakeAPI struct {
	mu sync.Mutex

	startResults []startResult
	startCalls   []agenttask.StartRequest

	active      *agenttask.Task
	activeErr   error
	activeCalls int
	recent      []*agenttask.Task
	tasks       map[core.ID]*agenttask.Task
	getTaskErr  error
	getCalls    int

	cancelErr   error
	cancelCalls []core.ID
	// cancelGate, when set, holds CancelTask until it is closed.
	cancelGate chan struct{}

	followUpErr   error
	followUpCalls []string

	feedbackErr   error
	feedbackCalls []agenttask.Feedback
}

type startResult struct {
	task *agenttask.Task
	err  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{tasks: map[core.ID]*agenttask.Task{}}
}

func (f *fakeAPI) StartTask(_ context.Context, req agenttask.StartRequest) (*agenttask.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, req)
	if len(f.startResults) == 0 {
		return nil, errors.New("unexpected start")
	}
	res := f.startResults[0]
	if len(f.startResults) > 1 {
		f.startResults = f.startResults[1:]
	}
	if res.err != nil {
		return nil, res.err
	}
	return res.task.Clone(), nil
}

func (f *fakeAPI) CancelTask(ctx context.Context, id core.ID) error {
	f.mu.Lock()
	f.cancelCalls = append(f.cancelCalls, id)
	gate, err := f.cancelGate, f.cancelErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeAPI) SendFollowUp(_ context.Context, _ core.ID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followUpCalls = append(f.followUpCalls, message)
	return f.followUpErr
}

func (f *fakeAPI) GetActiveTask(context.Context) (*agenttask.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeCalls++
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return f.active.Clone(), nil
}

func (f *fakeAPI) GetRecentTasks(_ context.Context, limit int) ([]*agenttask.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := cloneTasks(f.recent)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAPI) GetTask(_ context.Context, id core.ID) (*agenttask.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getTaskErr != nil {
		return nil, f.getTaskErr
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return t.Clone(), nil
}

func (f *fakeAPI) SubmitFeedback(_ context.Context, _ core.ID, fb agenttask.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbackCalls = append(f.feedbackCalls, fb)
	return f.feedbackErr
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.startCalls)
}

// pipeConn is a stream connection fed by the test.
type pipeConn struct {
	msgs   chan stream.Message
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{msgs: make(chan stream.Message, 16), closed: make(chan struct{})}
}

func (c *pipeConn) Recv() (stream.Message, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return stream.Message{}, errors.New("closed")
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *pipeConn) send(typ stream.MessageType, data string) {
	c.msgs <- stream.Message{Type: typ, Data: []byte(data)}
}

// pipeDialer hands out one pipeConn per task id.
type pipeDialer struct {
	mu    sync.Mutex
	conns map[core.ID]*pipeConn
	dials []stream.DialRequest
	fail  bool
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{conns: map[core.ID]*pipeConn{}}
}

func (d *pipeDialer) Dial(_ context.Context, req stream.DialRequest) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, req)
	if d.fail {
		return nil, errors.New("stream unavailable")
	}
	conn, ok := d.conns[req.TaskID]
	if !ok || conn.isClosed() {
		conn = newPipeConn()
		d.conns[req.TaskID] = conn
	}
	return conn, nil
}

func (d *pipeDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *pipeDialer) conn(id core.ID) *pipeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[id]
}

func runningTask(id core.ID, goal string) *agenttask.Task {
	return &agenttask.Task{ID: id, Goal: goal, Status: agenttask.StatusRunning}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func statusPtr(v agenttask.Status) *agenttask.Status { return &v }
