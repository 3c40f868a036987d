package task

import (
	"context"
	"strings"

	"github.com/briefcase-hq/briefcase/cli/cmd"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	"github.com/spf13/cobra"
)

const (
	flagExtended = "extended"
	flagDetach   = "detach"
)

// NewStartCommand creates the task start command.
func NewStartCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "start <goal>",
		Short: "Start a background agent task",
		Long: "Submit a goal to the agent and follow the task until it finishes. " +
			"Use --detach to return as soon as the task is accepted.",
		Args: cobra.MinimumNArgs(1),
		RunE: executeStart,
	}
	command.Flags().Bool(flagExtended, false, "Allow the agent to run for longer")
	command.Flags().Bool(flagDetach, false, "Return after the task is accepted")
	return command
}

func executeStart(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{
		Notifier: newNotifier(helpers.DetectMode(cobraCmd)),
	}, cmd.ModeHandlers{
		JSON: handleStartJSON,
		TUI:  handleStartTUI,
	}, args)
}

func startTask(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) (*agenttask.Task, error) {
	extended, err := cobraCmd.Flags().GetBool(flagExtended)
	if err != nil {
		return nil, err
	}
	goal := strings.Join(args, " ")
	task, err := executor.Controller().Start(ctx, goal, agenttask.StartOptions{Extended: extended})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("Task accepted", "task_id", task.ID)
	return task, nil
}

func handleStartJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	w := newJSONWatcher(cobraCmd.OutOrStdout(), executor.Controller(), executor.Bus())
	if err := w.subscribe(ctx); err != nil {
		return err
	}
	defer w.close()
	task, err := startTask(ctx, cobraCmd, executor, args)
	if err != nil {
		return err
	}
	if detach, _ := cobraCmd.Flags().GetBool(flagDetach); detach {
		return w.writeTask(task)
	}
	return w.watch(ctx, task.ID)
}

func handleStartTUI(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	task, err := startTask(ctx, cobraCmd, executor, args)
	if err != nil {
		return err
	}
	if detach, _ := cobraCmd.Flags().GetBool(flagDetach); detach {
		cobraCmd.Printf("Task %s started\n", task.ID)
		return nil
	}
	return watchTUI(ctx, cobraCmd, executor)
}
