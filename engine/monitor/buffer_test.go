package monitor

import (
	"testing"
	"time"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ev(sec int, msg string) agenttask.StreamEvent {
	return agenttask.StreamEvent{Type: "tool", Message: msg, Timestamp: baseTime.Add(time.Duration(sec) * time.Second)}
}

func messages(events []agenttask.StreamEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Message
	}
	return out
}

func TestEventBuffer_Append(t *testing.T) {
	t.Run("Should append in order and skip known timestamps", func(t *testing.T) {
		b := NewEventBuffer(10)
		assert.True(t, b.Append(ev(1, "a")))
		assert.True(t, b.Append(ev(2, "b")))
		assert.False(t, b.Append(ev(1, "a again")))
		assert.Equal(t, []string{"a", "b"}, messages(b.Events()))
	})
	t.Run("Should drop the oldest entries when full", func(t *testing.T) {
		b := NewEventBuffer(3)
		for i := range 5 {
			b.Append(ev(i, string(rune('a'+i))))
		}
		assert.Equal(t, []string{"c", "d", "e"}, messages(b.Events()))
		// an evicted timestamp may come back
		assert.True(t, b.Append(ev(0, "a")))
	})
	t.Run("Should default to 100 entries", func(t *testing.T) {
		b := NewEventBuffer(0)
		for i := range 150 {
			b.Append(ev(i, "x"))
		}
		assert.Equal(t, 100, b.Len())
		assert.Equal(t, baseTime.Add(50*time.Second), b.Events()[0].Timestamp)
	})
}

func TestEventBuffer_MergeHistory(t *testing.T) {
	t.Run("Should append only unseen events on reconnection", func(t *testing.T) {
		b := NewEventBuffer(100)
		b.Append(ev(1, "a"))
		b.Append(ev(2, "b"))
		added := b.MergeHistory([]agenttask.StreamEvent{ev(2, "b"), ev(3, "c"), ev(4, "d")}, true)
		assert.Equal(t, 2, added)
		assert.Equal(t, []string{"a", "b", "c", "d"}, messages(b.Events()))
	})
	t.Run("Should prepend the initial catch-up", func(t *testing.T) {
		b := NewEventBuffer(100)
		b.Append(ev(5, "live"))
		b.MergeHistory([]agenttask.StreamEvent{ev(1, "h1"), ev(2, "h2")}, false)
		assert.Equal(t, []string{"h1", "h2", "live"}, messages(b.Events()))
	})
	t.Run("Should drop duplicates inside the batch", func(t *testing.T) {
		b := NewEventBuffer(100)
		b.MergeHistory([]agenttask.StreamEvent{ev(1, "a"), ev(1, "a"), ev(2, "b")}, true)
		assert.Equal(t, []string{"a", "b"}, messages(b.Events()))
	})
	t.Run("Should not re-sort across a reconnect", func(t *testing.T) {
		b := NewEventBuffer(100)
		b.Append(ev(10, "late"))
		b.MergeHistory([]agenttask.StreamEvent{ev(5, "early")}, true)
		assert.Equal(t, []string{"late", "early"}, messages(b.Events()))
	})
	t.Run("Should keep at most the cap with unique timestamps", func(t *testing.T) {
		b := NewEventBuffer(100)
		for i := range 80 {
			b.Append(ev(i, "live"))
		}
		var history []agenttask.StreamEvent
		for i := 40; i < 140; i++ {
			history = append(history, ev(i, "replay"))
		}
		b.MergeHistory(history, true)
		events := b.Events()
		require.Len(t, events, 100)
		seen := map[int64]bool{}
		for _, e := range events {
			assert.False(t, seen[e.DedupKey()])
			seen[e.DedupKey()] = true
		}
		assert.Equal(t, baseTime.Add(139*time.Second), events[99].Timestamp)
	})
	t.Run("Should keep an event replayed and delivered live exactly once", func(t *testing.T) {
		b := NewEventBuffer(100)
		b.MergeHistory([]agenttask.StreamEvent{ev(7, "same")}, true)
		b.Append(ev(7, "same"))
		b.MergeHistory([]agenttask.StreamEvent{ev(7, "same")}, true)
		assert.Equal(t, 1, b.Len())
	})
	t.Run("Should forget everything on reset", func(t *testing.T) {
		b := NewEventBuffer(100)
		b.Append(ev(1, "a"))
		b.Reset()
		assert.Zero(t, b.Len())
		assert.True(t, b.Append(ev(1, "a")))
	})
}
