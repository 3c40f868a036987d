package monitor

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStallDetector_Observe(t *testing.T) {
	running := agenttask.StatusRunning
	progress := agenttask.Progress{Percent: 30, CurrentStep: "Reading exhibits"}

	t.Run("Should flip to stalled exactly once after the threshold", func(t *testing.T) {
		clk := clock.NewMock()
		d := NewStallDetector(2 * time.Minute)
		flips := 0
		for range 30 {
			if d.Observe(clk.Now(), running, progress) {
				flips++
			}
			clk.Add(10 * time.Second)
		}
		assert.Equal(t, 1, flips)
		assert.True(t, d.IsStalled())
	})
	t.Run("Should not flip at exactly the threshold", func(t *testing.T) {
		clk := clock.NewMock()
		d := NewStallDetector(2 * time.Minute)
		d.Observe(clk.Now(), running, progress)
		clk.Add(2 * time.Minute)
		assert.False(t, d.Observe(clk.Now(), running, progress))
		clk.Add(10 * time.Second)
		assert.True(t, d.Observe(clk.Now(), running, progress))
	})
	t.Run("Should clear and restart the window when progress changes", func(t *testing.T) {
		clk := clock.NewMock()
		d := NewStallDetector(2 * time.Minute)
		d.Observe(clk.Now(), running, progress)
		clk.Add(3 * time.Minute)
		require.True(t, d.Observe(clk.Now(), running, progress))

		moved := agenttask.Progress{Percent: 31, CurrentStep: "Reading exhibits"}
		assert.False(t, d.Observe(clk.Now(), running, moved))
		assert.False(t, d.IsStalled())
		snap, ok := d.Snapshot()
		require.True(t, ok)
		assert.Equal(t, 31, snap.Percent)
		assert.Equal(t, clk.Now(), snap.CheckedAt)

		clk.Add(time.Minute)
		assert.False(t, d.Observe(clk.Now(), running, moved))
	})
	t.Run("Should treat a step change as progress", func(t *testing.T) {
		clk := clock.NewMock()
		d := NewStallDetector(time.Minute)
		d.Observe(clk.Now(), running, progress)
		clk.Add(50 * time.Second)
		d.Observe(clk.Now(), running, agenttask.Progress{Percent: 30, CurrentStep: "Drafting memo"})
		clk.Add(50 * time.Second)
		assert.False(t, d.Observe(clk.Now(), running, agenttask.Progress{Percent: 30, CurrentStep: "Drafting memo"}))
	})
	t.Run("Should reset when the task is not running", func(t *testing.T) {
		clk := clock.NewMock()
		d := NewStallDetector(time.Minute)
		d.Observe(clk.Now(), running, progress)
		clk.Add(2 * time.Minute)
		require.True(t, d.Observe(clk.Now(), running, progress))
		assert.False(t, d.Observe(clk.Now(), agenttask.StatusCompleted, progress))
		assert.False(t, d.IsStalled())
		_, ok := d.Snapshot()
		assert.False(t, ok)
	})
}
