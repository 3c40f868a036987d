package task

import (
	"context"

	"github.com/briefcase-hq/briefcase/cli/cmd"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/spf13/cobra"
)

// NewCancelCommand creates the task cancel command.
func NewCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the task that is currently running",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, cmd.ModeHandlers{
				JSON: handleCancelJSON,
				TUI:  handleCancelTUI,
			}, args)
		},
	}
}

func cancelActive(ctx context.Context, executor *cmd.CommandExecutor) (*agenttask.Task, error) {
	ctrl := executor.Controller()
	task, err := ctrl.Resume(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Cancel(ctx); err != nil {
		return nil, err
	}
	task.Status = agenttask.StatusCancelled
	return task, nil
}

func handleCancelJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	task, err := cancelActive(ctx, executor)
	if err != nil {
		return err
	}
	return helpers.WriteJSON(cobraCmd.OutOrStdout(), map[string]any{"taskId": task.ID, "status": task.Status})
}

func handleCancelTUI(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	task, err := cancelActive(ctx, executor)
	if err != nil {
		return err
	}
	cobraCmd.Printf("Task %s cancelled\n", task.ID)
	return nil
}
