package agenttask

import "time"

// StreamEvent is one human-readable entry of a task's activity log.
type StreamEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
}

// DedupKey identifies an event for duplicate suppression across reconnects.
func (e StreamEvent) DedupKey() int64 {
	return e.Timestamp.UnixNano()
}

// TaskStarted is broadcast to sibling components when a task begins.
type TaskStarted struct {
	TaskID   string `json:"taskId"`
	Goal     string `json:"goal"`
	Extended bool   `json:"extended"`
}

// TaskFinished is broadcast once a task has been finalized.
type TaskFinished struct {
	TaskID string `json:"taskId"`
	Status Status `json:"status"`
	Source string `json:"source"`
}
