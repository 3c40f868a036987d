package monitor

import (
	"sync"
	"time"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
)

const (
	DefaultStallCheckInterval = 10 * time.Second
	DefaultStallThreshold     = 2 * time.Minute
)

// StallSnapshot is the last observed progress and when it last changed.
type StallSnapshot struct {
	Step      string    `json:"step"`
	Percent   int       `json:"percent"`
	CheckedAt time.Time `json:"checkedAt"`
}

// StallDetector flags a running task whose progress has not changed for longer
// than the threshold. It never acts on the task.
type StallDetector struct {
	mu        sync.RWMutex
	threshold time.Duration
	snapshot  *StallSnapshot
	stalled   bool
}

func NewStallDetector(threshold time.Duration) *StallDetector {
	if threshold <= 0 {
		threshold = DefaultStallThreshold
	}
	return &StallDetector{threshold: threshold}
}

// Observe compares progress with the snapshot. It returns true only on the
// check that flips the detector to stalled.
func (d *StallDetector) Observe(now time.Time, status agenttask.Status, progress agenttask.Progress) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status != agenttask.StatusRunning {
		d.snapshot = nil
		d.stalled = false
		return false
	}
	if d.snapshot == nil || d.snapshot.Step != progress.CurrentStep || d.snapshot.Percent != progress.Percent {
		d.snapshot = &StallSnapshot{Step: progress.CurrentStep, Percent: progress.Percent, CheckedAt: now}
		d.stalled = false
		return false
	}
	if d.stalled || now.Sub(d.snapshot.CheckedAt) <= d.threshold {
		return false
	}
	d.stalled = true
	return true
}

func (d *StallDetector) IsStalled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stalled
}

func (d *StallDetector) Snapshot() (StallSnapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snapshot == nil {
		return StallSnapshot{}, false
	}
	return *d.snapshot, true
}

func (d *StallDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = nil
	d.stalled = false
}
