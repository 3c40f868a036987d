package task

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briefcase-hq/briefcase/cli/cmd"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/cli/tui/components"
	"github.com/briefcase-hq/briefcase/cli/tui/models"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/briefcase-hq/briefcase/engine/infra/pubsub"
	"github.com/briefcase-hq/briefcase/engine/monitor"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const jsonRefreshInterval = 250 * time.Millisecond

// NewWatchCommand creates the task watch command.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the task that is currently running",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{
				Notifier: newNotifier(helpers.DetectMode(cobraCmd)),
			}, cmd.ModeHandlers{
				JSON: handleWatchJSON,
				TUI:  handleWatchTUI,
			}, args)
		},
	}
}

func handleWatchJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	w := newJSONWatcher(cobraCmd.OutOrStdout(), executor.Controller(), executor.Bus())
	if err := w.subscribe(ctx); err != nil {
		return err
	}
	defer w.close()
	task, err := executor.Controller().Resume(ctx)
	if err != nil {
		return err
	}
	return w.watch(ctx, task.ID)
}

func handleWatchTUI(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	if _, err := executor.Controller().Resume(ctx); err != nil {
		return err
	}
	return watchTUI(ctx, cobraCmd, executor)
}

// watchTUI renders the status indicator until the task finishes or the user detaches.
func watchTUI(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor) error {
	ctrl := executor.Controller()
	model := components.NewStatusModel(ctrl, func() error {
		return ctrl.Cancel(context.WithoutCancel(ctx))
	})
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(cobraCmd.InOrStdin()),
		tea.WithOutput(cobraCmd.OutOrStdout()),
	)
	forwardCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(forwardCtx)
	g.Go(func() error {
		forwardBus(gctx, executor.Bus(), program)
		return nil
	})
	final, err := program.Run()
	stop()
	_ = g.Wait()
	if err != nil {
		return fmt.Errorf("status view failed: %w", err)
	}
	if m, ok := final.(components.StatusModel); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}

// forwardBus relays task broadcasts into the running program.
func forwardBus(ctx context.Context, bus *pubsub.Bus, program *tea.Program) {
	log := logger.FromContext(ctx)
	started, err := bus.Subscribe(ctx, pubsub.TopicTaskStarted)
	if err != nil {
		log.Debug("Bus subscribe failed", "topic", pubsub.TopicTaskStarted, "error", err)
		return
	}
	defer started.Close()
	finished, err := bus.Subscribe(ctx, pubsub.TopicTaskFinished)
	if err != nil {
		log.Debug("Bus subscribe failed", "topic", pubsub.TopicTaskFinished, "error", err)
		return
	}
	defer finished.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-started.Messages():
			if !ok {
				return
			}
			var payload agenttask.TaskStarted
			if _, err := pubsub.Decode(msg, &payload); err == nil {
				program.Send(components.TaskStartedMsg(payload))
			}
		case msg, ok := <-finished.Messages():
			if !ok {
				return
			}
			var payload agenttask.TaskFinished
			if _, err := pubsub.Decode(msg, &payload); err == nil {
				program.Send(components.TaskFinishedMsg(payload))
			}
		}
	}
}

// jsonLine is one record of the JSON watch output.
type jsonLine struct {
	Type   string                 `json:"type"`
	Event  *agenttask.StreamEvent `json:"event,omitempty"`
	Task   *agenttask.Task        `json:"task,omitempty"`
	Source string                 `json:"source,omitempty"`
}

// jsonWatcher prints new activity events as JSON lines and the final task once.
type jsonWatcher struct {
	out      io.Writer
	state    interface{ State() monitor.State }
	bus      *pubsub.Bus
	sub      pubsub.Subscription
	printed  map[int64]struct{}
}

func newJSONWatcher(out io.Writer, state interface{ State() monitor.State }, bus *pubsub.Bus) *jsonWatcher {
	return &jsonWatcher{out: out, state: state, bus: bus, printed: map[int64]struct{}{}}
}

// subscribe must run before the task starts so the finish broadcast is not missed.
func (w *jsonWatcher) subscribe(ctx context.Context) error {
	sub, err := w.bus.Subscribe(ctx, pubsub.TopicTaskFinished)
	if err != nil {
		return fmt.Errorf("subscribe to task broadcasts: %w", err)
	}
	w.sub = sub
	return nil
}

func (w *jsonWatcher) close() {
	if w.sub != nil {
		_ = w.sub.Close()
	}
}

func (w *jsonWatcher) writeTask(task *agenttask.Task) error {
	return helpers.WriteJSONLine(w.out, jsonLine{Type: "task", Task: task})
}

func (w *jsonWatcher) watch(ctx context.Context, id core.ID) error {
	ticker := time.NewTicker(jsonRefreshInterval)
	defer ticker.Stop()
	for {
		st := w.state.State()
		if err := w.flushEvents(st.Events); err != nil {
			return err
		}
		if done := finishedTask(st, id); done != nil {
			return helpers.WriteJSONLine(w.out, jsonLine{Type: "finished", Task: done})
		}
		var messages <-chan pubsub.Message
		if w.sub != nil {
			messages = w.sub.Messages()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				w.sub = nil
				continue
			}
			var payload agenttask.TaskFinished
			if _, err := pubsub.Decode(msg, &payload); err != nil {
				logger.FromContext(ctx).Debug("Ignoring bus message", "error", err)
			}
		case <-ticker.C:
		}
	}
}

// flushEvents writes every event not printed yet, including history that
// arrives after newer live events.
func (w *jsonWatcher) flushEvents(events []agenttask.StreamEvent) error {
	for i := range events {
		ev := events[i]
		key := ev.DedupKey()
		if _, ok := w.printed[key]; ok {
			continue
		}
		if err := helpers.WriteJSONLine(w.out, jsonLine{Type: "event", Event: &ev}); err != nil {
			return err
		}
		w.printed[key] = struct{}{}
	}
	return nil
}

func finishedTask(st monitor.State, id core.ID) *agenttask.Task {
	if st.Active != nil || st.Cancelling != nil {
		return nil
	}
	if st.LastCompleted != nil && st.LastCompleted.ID == id {
		return st.LastCompleted
	}
	return nil
}

// newNotifier rings the terminal bell in interactive mode when a task finishes.
func newNotifier(mode models.Mode) monitor.Notifier {
	if mode != models.ModeTUI {
		return nil
	}
	return monitor.NotifierFunc(func(_ context.Context, _ *agenttask.Task, _ monitor.Source) {
		fmt.Fprint(os.Stderr, "\a")
	})
}
