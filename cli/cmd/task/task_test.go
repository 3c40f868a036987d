package task

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/briefcase-hq/briefcase/engine/infra/pubsub"
	"github.com/briefcase-hq/briefcase/engine/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateFunc func() monitor.State

func (f stateFunc) State() monitor.State {
	return f()
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []jsonLine {
	t.Helper()
	var out []jsonLine
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var line jsonLine
		require.NoError(t, json.Unmarshal(raw, &line))
		out = append(out, line)
	}
	return out
}

func TestJSONWatcher(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t.Run("Should print each event once and stop at the final task", func(t *testing.T) {
		events := []agenttask.StreamEvent{
			{Type: "event", Message: "first", Timestamp: base},
			{Type: "event", Message: "second", Timestamp: base.Add(time.Second)},
		}
		calls := 0
		src := stateFunc(func() monitor.State {
			calls++
			if calls == 1 {
				return monitor.State{
					Snapshot: monitor.Snapshot{Active: &agenttask.Task{ID: "t1", Status: agenttask.StatusRunning}},
					Events:   events,
				}
			}
			return monitor.State{
				Snapshot: monitor.Snapshot{LastCompleted: &agenttask.Task{
					ID: "t1", Status: agenttask.StatusCompleted, Progress: agenttask.Progress{Percent: 100},
				}},
				Events: events,
			}
		})
		var buf bytes.Buffer
		bus := pubsub.NewBus(pubsub.NewMemoryProvider(), "test")
		w := newJSONWatcher(&buf, src, bus)
		require.NoError(t, w.subscribe(t.Context()))
		defer w.close()
		bus.Publish(t.Context(), pubsub.TopicTaskFinished, agenttask.TaskFinished{TaskID: "t1"})

		require.NoError(t, w.watch(t.Context(), core.ID("t1")))
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 3)
		assert.Equal(t, "first", lines[0].Event.Message)
		assert.Equal(t, "second", lines[1].Event.Message)
		assert.Equal(t, "finished", lines[2].Type)
		assert.Equal(t, agenttask.StatusCompleted, lines[2].Task.Status)
	})
	t.Run("Should print history that arrives after newer live events", func(t *testing.T) {
		live := agenttask.StreamEvent{Type: "event", Message: "live", Timestamp: base.Add(time.Minute)}
		history := []agenttask.StreamEvent{
			{Type: "event", Message: "older", Timestamp: base},
			{Type: "event", Message: "old", Timestamp: base.Add(time.Second)},
		}
		var buf bytes.Buffer
		w := newJSONWatcher(&buf, nil, nil)
		require.NoError(t, w.flushEvents([]agenttask.StreamEvent{live}))
		require.NoError(t, w.flushEvents(append(history, live)))
		require.NoError(t, w.flushEvents(append(history, live)))

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 3)
		assert.Equal(t, "live", lines[0].Event.Message)
		assert.Equal(t, "older", lines[1].Event.Message)
		assert.Equal(t, "old", lines[2].Event.Message)
	})
	t.Run("Should return when the context ends", func(t *testing.T) {
		src := stateFunc(func() monitor.State {
			return monitor.State{Snapshot: monitor.Snapshot{Active: &agenttask.Task{ID: "t1"}}}
		})
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		w := newJSONWatcher(&bytes.Buffer{}, src, pubsub.NewBus(pubsub.NewMemoryProvider(), ""))
		assert.ErrorIs(t, w.watch(ctx, "t1"), context.DeadlineExceeded)
	})
	t.Run("Should ignore a different finished task", func(t *testing.T) {
		st := monitor.State{Snapshot: monitor.Snapshot{LastCompleted: &agenttask.Task{ID: "other"}}}
		assert.Nil(t, finishedTask(st, "t1"))
	})
}

func TestFeedbackFromFlags(t *testing.T) {
	t.Run("Should leave rating unset when the flag is absent", func(t *testing.T) {
		command := NewFeedbackCommand()
		require.NoError(t, command.ParseFlags([]string{"--text", "Great summary"}))
		fb, err := feedbackFromFlags(command)
		require.NoError(t, err)
		assert.Nil(t, fb.Rating)
		assert.Equal(t, "Great summary", fb.Text)
	})
	t.Run("Should read the rating when given", func(t *testing.T) {
		command := NewFeedbackCommand()
		require.NoError(t, command.ParseFlags([]string{"--rating", "4", "--correction", "Cite rule 26"}))
		fb, err := feedbackFromFlags(command)
		require.NoError(t, err)
		require.NotNil(t, fb.Rating)
		assert.Equal(t, 4, *fb.Rating)
		assert.Equal(t, "Cite rule 26", fb.Correction)
	})
}

func TestRenderRecent(t *testing.T) {
	t.Run("Should list every task", func(t *testing.T) {
		out := renderRecent([]*agenttask.Task{
			{ID: "t1", Goal: "Draft the engagement letter", Status: agenttask.StatusCompleted, Progress: agenttask.Progress{Percent: 100}},
			{ID: "t2", Goal: "Summarize deposition", Status: agenttask.StatusFailed, Progress: agenttask.Progress{Percent: 30}},
		})
		assert.Contains(t, out, "t1")
		assert.Contains(t, out, "Summarize deposition")
		assert.Contains(t, out, "30%")
	})
}

func TestCmd(t *testing.T) {
	t.Run("Should register every subcommand", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range Cmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"start", "watch", "cancel", "followup", "feedback", "recent"} {
			assert.True(t, names[want], want)
		}
	})
}
