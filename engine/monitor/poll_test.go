package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowAPI struct {
	*fakeAPI
}

func (s slowAPI) GetActiveTask(ctx context.Context) (*agenttask.Task, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
		return nil, nil
	}
}

func TestPollWatcher_Tick(t *testing.T) {
	t.Run("Should merge the polled copy of the held task", func(t *testing.T) {
		api := newFakeAPI()
		polled := runningTask("t1", "goal")
		polled.Progress.Percent = 70
		api.active = polled
		api.recent = []*agenttask.Task{{ID: "old", Status: agenttask.StatusCompleted}}
		m := NewMerger(nil)
		m.Begin(runningTask("t1", "goal"))

		require.NoError(t, NewPollWatcher(api, m, "t1", PollOptions{}).Tick(t.Context()))
		assert.Equal(t, 70, m.Active().Progress.Percent)
		require.Len(t, m.Snapshot().Recent, 1)
		assert.Zero(t, api.getCalls)
	})
	t.Run("Should finalize with the fetched record once the task is no longer active", func(t *testing.T) {
		api := newFakeAPI()
		api.tasks["t1"] = &agenttask.Task{ID: "t1", Status: agenttask.StatusCompleted, Result: agenttask.Result{Summary: "Done"}}
		m := NewMerger(nil)
		var finalized []Source
		m.OnFinalize(func(_ context.Context, _ *agenttask.Task, source Source) {
			finalized = append(finalized, source)
		})
		m.Begin(runningTask("t1", "goal"))
		w := NewPollWatcher(api, m, "t1", PollOptions{})

		require.NoError(t, w.Tick(t.Context()))
		assert.Equal(t, []Source{SourcePoll}, finalized)
		assert.True(t, m.ActiveID().IsZero())
		assert.Equal(t, "Done", m.LastCompleted().Result.Summary)

		require.NoError(t, w.Tick(t.Context()))
		assert.Len(t, finalized, 1)
		assert.Equal(t, 1, api.getCalls)
	})
	t.Run("Should finalize when the server reports another task", func(t *testing.T) {
		api := newFakeAPI()
		api.active = runningTask("t2", "other")
		api.tasks["t1"] = &agenttask.Task{ID: "t1", Status: agenttask.StatusCancelled}
		m := NewMerger(nil)
		m.Begin(runningTask("t1", "goal"))
		require.NoError(t, NewPollWatcher(api, m, "t1", PollOptions{}).Tick(t.Context()))
		assert.Equal(t, agenttask.StatusCancelled, m.LastCompleted().Status)
	})
	t.Run("Should keep the reference when the final fetch fails", func(t *testing.T) {
		api := newFakeAPI()
		api.getTaskErr = errors.New("gateway timeout")
		m := NewMerger(nil)
		m.Begin(runningTask("t1", "goal"))
		w := NewPollWatcher(api, m, "t1", PollOptions{})

		err := w.Tick(t.Context())
		assert.ErrorContains(t, err, "gateway timeout")
		assert.Equal(t, core.ID("t1"), m.ActiveID())

		api.set(func(f *fakeAPI) {
			f.getTaskErr = nil
			f.tasks["t1"] = &agenttask.Task{ID: "t1", Status: agenttask.StatusCompleted}
		})
		require.NoError(t, w.Tick(t.Context()))
		assert.True(t, m.ActiveID().IsZero())
	})
	t.Run("Should leave state untouched when the active fetch fails", func(t *testing.T) {
		api := newFakeAPI()
		api.activeErr = errors.New("connection refused")
		m := NewMerger(nil)
		m.Begin(runningTask("t1", "goal"))
		err := NewPollWatcher(api, m, "t1", PollOptions{}).Tick(t.Context())
		assert.ErrorContains(t, err, "fetch active task")
		assert.Equal(t, core.ID("t1"), m.ActiveID())
		assert.Zero(t, api.getCalls)
	})
	t.Run("Should bound each fetch by the poll timeout", func(t *testing.T) {
		api := slowAPI{newFakeAPI()}
		m := NewMerger(nil)
		m.Begin(runningTask("t1", "goal"))
		start := time.Now()
		err := NewPollWatcher(api, m, "t1", PollOptions{Timeout: 20 * time.Millisecond}).Tick(t.Context())
		require.Error(t, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, core.ID("t1"), m.ActiveID())
	})
	t.Run("Should do nothing once the reference was cleared by the stream", func(t *testing.T) {
		api := newFakeAPI()
		m := NewMerger(nil)
		m.Begin(runningTask("t1", "goal"))
		m.Complete(t.Context(), "t1", "Done")
		require.NoError(t, NewPollWatcher(api, m, "t1", PollOptions{}).Tick(t.Context()))
		assert.Zero(t, api.getCalls)
		assert.Equal(t, "Done", m.LastCompleted().Result.Summary)
	})
}
