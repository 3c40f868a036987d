package monitor

import (
	"sync"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
)

const DefaultEventBufferSize = 100

// EventBuffer is a bounded, ordered log of stream events. No two entries share
// a timestamp; when full the oldest entries are dropped. Entries are kept in
// insertion order and never re-sorted across reconnects.
type EventBuffer struct {
	mu     sync.RWMutex
	size   int
	events []agenttask.StreamEvent
	seen   map[int64]struct{}
}

func NewEventBuffer(size int) *EventBuffer {
	if size <= 0 {
		size = DefaultEventBufferSize
	}
	return &EventBuffer{size: size, seen: make(map[int64]struct{})}
}

// Append adds ev at the tail unless its timestamp is already present.
func (b *EventBuffer) Append(ev agenttask.StreamEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.seen[ev.DedupKey()]; dup {
		return false
	}
	b.seen[ev.DedupKey()] = struct{}{}
	b.events = append(b.events, ev)
	b.trim()
	return true
}

// MergeHistory merges a history batch. A reconnection batch is appended after
// the current entries, an initial batch is placed before them. Events whose
// timestamp is already known are skipped. It returns how many were added.
func (b *EventBuffer) MergeHistory(events []agenttask.StreamEvent, isReconnection bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	fresh := make([]agenttask.StreamEvent, 0, len(events))
	for _, ev := range events {
		key := ev.DedupKey()
		if _, dup := b.seen[key]; dup {
			continue
		}
		b.seen[key] = struct{}{}
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return 0
	}
	if isReconnection {
		b.events = append(b.events, fresh...)
	} else {
		b.events = append(fresh, b.events...)
	}
	b.trim()
	return len(fresh)
}

func (b *EventBuffer) trim() {
	over := len(b.events) - b.size
	if over <= 0 {
		return
	}
	for _, ev := range b.events[:over] {
		delete(b.seen, ev.DedupKey())
	}
	kept := make([]agenttask.StreamEvent, b.size)
	copy(kept, b.events[over:])
	b.events = kept
}

// Events returns a copy of the buffered events, oldest first.
func (b *EventBuffer) Events() []agenttask.StreamEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]agenttask.StreamEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

func (b *EventBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
	b.seen = make(map[int64]struct{})
}
