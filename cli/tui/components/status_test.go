package components

import (
	"errors"
	"testing"
	"time"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/monitor"
	"github.com/briefcase-hq/briefcase/engine/monitor/stream"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	state monitor.State
}

func (s *staticSource) State() monitor.State {
	return s.state
}

func running(percent int) monitor.State {
	return monitor.State{
		Snapshot: monitor.Snapshot{Active: &agenttask.Task{
			ID:       "t1",
			Goal:     "Review documents for matter 42",
			Status:   agenttask.StatusRunning,
			Progress: agenttask.Progress{Percent: percent, CurrentStep: "Reading exhibits"},
		}},
		Connection: stream.StateConnected,
		Events: []agenttask.StreamEvent{
			{Message: "Opened exhibit A", Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		},
	}
}

func TestStatusModel_Update(t *testing.T) {
	t.Run("Should render the active task on refresh", func(t *testing.T) {
		src := &staticSource{state: running(40)}
		m := NewStatusModel(src, nil)
		next, cmd := m.Update(refreshMsg(time.Now()))
		require.NotNil(t, cmd)
		view := next.View()
		assert.Contains(t, view, "Review documents for matter 42")
		assert.Contains(t, view, "Reading exhibits")
		assert.Contains(t, view, "Opened exhibit A")
		assert.Contains(t, view, "live")
		assert.False(t, next.(StatusModel).Done())
	})
	t.Run("Should quit once the task is finalized", func(t *testing.T) {
		src := &staticSource{state: monitor.State{Snapshot: monitor.Snapshot{LastCompleted: &agenttask.Task{
			ID: "t1", Goal: "Review documents", Status: agenttask.StatusCompleted,
			Progress: agenttask.Progress{Percent: 100}, Result: agenttask.Result{Summary: "Done"},
		}}}}
		next, cmd := NewStatusModel(src, nil).Update(refreshMsg(time.Now()))
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.True(t, next.(StatusModel).Done())
		assert.Contains(t, next.View(), "Done")
	})
	t.Run("Should flag stalls and reconnects", func(t *testing.T) {
		st := running(10)
		st.Stalled = true
		st.Connection = stream.StateError
		st.Reconnect = stream.ReconnectContext{Attempt: 2, MaxAttempts: 5}
		next, _ := NewStatusModel(&staticSource{state: st}, nil).Update(refreshMsg(time.Now()))
		view := next.View()
		assert.Contains(t, view, "stalled")
		assert.Contains(t, view, "reconnecting (2/5)")
	})
	t.Run("Should cancel through the callback", func(t *testing.T) {
		src := &staticSource{state: running(40)}
		cancelled := false
		m := NewStatusModel(src, func() error {
			cancelled = true
			return errors.New("server unavailable")
		})
		next, _ := m.Update(refreshMsg(time.Now()))
		next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
		require.NotNil(t, cmd)
		msg := cmd()
		assert.True(t, cancelled)
		next, cmd = next.Update(msg)
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.EqualError(t, next.(StatusModel).Err(), "server unavailable")
	})
	t.Run("Should show bus notices", func(t *testing.T) {
		m := NewStatusModel(&staticSource{state: running(5)}, nil)
		next, _ := m.Update(refreshMsg(time.Now()))
		next, _ = next.Update(TaskStartedMsg{TaskID: "t1", Goal: "Review"})
		assert.Contains(t, next.View(), "Task t1 started")
	})
	t.Run("Should copy the task id while running", func(t *testing.T) {
		m := NewStatusModel(&staticSource{state: running(40)}, nil)
		var copied string
		m.copyText = func(s string) error {
			copied = s
			return nil
		}
		next, _ := m.Update(refreshMsg(time.Now()))
		next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
		assert.Equal(t, "t1", copied)
		assert.Contains(t, next.View(), "Copied to clipboard")
	})
	t.Run("Should detach on q", func(t *testing.T) {
		m := NewStatusModel(&staticSource{}, nil)
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	})
}
