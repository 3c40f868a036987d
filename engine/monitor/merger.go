package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
)

// Source names the observer that produced an update.
type Source string

const (
	SourceStream Source = "stream"
	SourcePoll   Source = "poll"
	SourceLocal  Source = "local"
)

// FinalizeHook runs once per finalized task, outside the merger lock.
type FinalizeHook func(ctx context.Context, task *agenttask.Task, source Source)

// Snapshot is a deep copy of the merger slots.
type Snapshot struct {
	Active        *agenttask.Task   `json:"active,omitempty"`
	LastCompleted *agenttask.Task   `json:"lastCompleted,omitempty"`
	Cancelling    *agenttask.Task   `json:"cancelling,omitempty"`
	Recent        []*agenttask.Task `json:"recent,omitempty"`
}

// Merger reduces stream and poll observations into one task view. The active
// slot doubles as the task-id reference: finalizing clears it, so a second
// observer reporting the same completion finds nothing to finalize.
type Merger struct {
	mu            sync.Mutex
	now           func() time.Time
	active        *agenttask.Task
	lastCompleted *agenttask.Task
	cancelling    *agenttask.Task
	recent        []*agenttask.Task
	hooks         []FinalizeHook
}

func NewMerger(now func() time.Time) *Merger {
	if now == nil {
		now = time.Now
	}
	return &Merger{now: now}
}

// OnFinalize registers a hook. Hooks must not block on the merger.
func (m *Merger) OnFinalize(hook FinalizeHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Begin installs task as the active one and resets the last-completed slot.
func (m *Merger) Begin(task *agenttask.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = task.Clone()
	m.lastCompleted = nil
	m.cancelling = nil
}

func (m *Merger) ActiveID() core.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.ID
}

func (m *Merger) Active() *agenttask.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Clone()
}

func (m *Merger) LastCompleted() *agenttask.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCompleted.Clone()
}

// ApplyProgress merges the fields present in u into the active task.
// Updates for any other id are ignored.
func (m *Merger) ApplyProgress(id core.ID, u agenttask.ProgressUpdate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.ID != id {
		return false
	}
	applyUpdate(m.active, u)
	return true
}

// ApplyTask merges a polled copy of the active task.
func (m *Merger) ApplyTask(task *agenttask.Task) bool {
	if task == nil {
		return false
	}
	status := task.Status
	p := task.Progress
	return m.ApplyProgress(task.ID, agenttask.ProgressUpdate{
		Percent:        &p.Percent,
		CurrentStep:    &p.CurrentStep,
		IterationCount: &p.IterationCount,
		TotalSteps:     p.TotalSteps,
		CompletedSteps: p.CompletedSteps,
		Status:         &status,
	})
}

func applyUpdate(t *agenttask.Task, u agenttask.ProgressUpdate) {
	if u.Status != nil && u.Status.IsServerStatus() && t.Status.CanTransitionTo(*u.Status) {
		t.Status = *u.Status
	}
	if u.Percent != nil {
		next := agenttask.ClampPercent(*u.Percent)
		if t.Status != agenttask.StatusRunning || next >= t.Progress.Percent {
			t.Progress.Percent = next
		}
	}
	if u.CurrentStep != nil {
		t.Progress.CurrentStep = *u.CurrentStep
	}
	if u.IterationCount != nil {
		t.Progress.IterationCount = *u.IterationCount
	}
	if u.TotalSteps != nil {
		v := *u.TotalSteps
		t.Progress.TotalSteps = &v
	}
	if u.CompletedSteps != nil {
		v := *u.CompletedSteps
		t.Progress.CompletedSteps = &v
	}
}

// Complete marks the active task completed with summary and finalizes it.
func (m *Merger) Complete(ctx context.Context, id core.ID, summary string) bool {
	m.mu.Lock()
	if m.active == nil || m.active.ID != id {
		m.mu.Unlock()
		return false
	}
	done := m.active.Clone()
	done.Status = agenttask.StatusCompleted
	done.Progress.Percent = 100
	done.Result.Summary = summary
	return m.finalizeLocked(ctx, done, SourceStream)
}

// Finalize moves the task id out of the active slot into last-completed. final
// is the server record when one was fetched; nil keeps the merged view. Only
// the first call for the active id has any effect.
func (m *Merger) Finalize(ctx context.Context, id core.ID, final *agenttask.Task, source Source) bool {
	m.mu.Lock()
	if m.active == nil || m.active.ID != id {
		m.mu.Unlock()
		return false
	}
	done := m.active.Clone()
	if final != nil {
		done = final.Clone()
		done.ID = id
		if done.Goal == "" {
			done.Goal = m.active.Goal
		}
	}
	if done.Status == agenttask.StatusCompleted {
		done.Progress.Percent = 100
	}
	return m.finalizeLocked(ctx, done, source)
}

// finalizeLocked expects m.mu held and releases it before running hooks.
func (m *Merger) finalizeLocked(ctx context.Context, done *agenttask.Task, source Source) bool {
	if done.CompletedAt == nil {
		at := m.now()
		done.CompletedAt = &at
	}
	m.lastCompleted = done
	m.active = nil
	m.cancelling = nil
	hooks := append([]FinalizeHook(nil), m.hooks...)
	m.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx, done.Clone(), source)
	}
	return true
}

// BeginCancel clears the active slot and exposes the task as cancelling.
func (m *Merger) BeginCancel(id core.ID) (*agenttask.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.ID != id {
		return nil, false
	}
	t := m.active
	m.active = nil
	m.cancelling = t.Clone()
	m.cancelling.Status = agenttask.StatusCancelling
	return t.Clone(), true
}

// EndCancel drops the cancelling label once the request has returned.
func (m *Merger) EndCancel(id core.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelling != nil && m.cancelling.ID == id {
		m.cancelling = nil
	}
}

// Dismiss clears the active and last-completed slots without finalizing.
func (m *Merger) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
	m.lastCompleted = nil
	m.cancelling = nil
}

func (m *Merger) SetRecent(tasks []*agenttask.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = cloneTasks(tasks)
}

// Find returns the last-completed or recent task with id.
func (m *Merger) Find(id core.ID) *agenttask.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastCompleted != nil && m.lastCompleted.ID == id {
		return m.lastCompleted.Clone()
	}
	for _, t := range m.recent {
		if t != nil && t.ID == id {
			return t.Clone()
		}
	}
	return nil
}

func (m *Merger) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Active:        m.active.Clone(),
		LastCompleted: m.lastCompleted.Clone(),
		Cancelling:    m.cancelling.Clone(),
		Recent:        cloneTasks(m.recent),
	}
}

func cloneTasks(tasks []*agenttask.Task) []*agenttask.Task {
	if tasks == nil {
		return nil
	}
	out := make([]*agenttask.Task, 0, len(tasks))
	for _, t := range tasks {
		if t != nil {
			out = append(out, t.Clone())
		}
	}
	return out
}
