package task

import (
	"context"
	"strings"

	"github.com/briefcase-hq/briefcase/cli/cmd"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/spf13/cobra"
)

// NewFollowUpCommand creates the task followup command.
func NewFollowUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "followup <message>",
		Aliases: []string{"say"},
		Short:   "Send a follow-up message to the running task",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, cmd.ModeHandlers{
				JSON: handleFollowUpJSON,
				TUI:  handleFollowUpTUI,
			}, args)
		},
	}
}

func sendFollowUp(ctx context.Context, executor *cmd.CommandExecutor, args []string) (string, error) {
	ctrl := executor.Controller()
	task, err := ctrl.Resume(ctx)
	if err != nil {
		return "", err
	}
	if err := ctrl.SendFollowUp(ctx, strings.Join(args, " ")); err != nil {
		return "", err
	}
	return task.ID.String(), nil
}

func handleFollowUpJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	id, err := sendFollowUp(ctx, executor, args)
	if err != nil {
		return err
	}
	return helpers.WriteJSON(cobraCmd.OutOrStdout(), map[string]any{"taskId": id, "sent": true})
}

func handleFollowUpTUI(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	id, err := sendFollowUp(ctx, executor, args)
	if err != nil {
		return err
	}
	cobraCmd.Printf("Message sent to task %s\n", id)
	return nil
}
