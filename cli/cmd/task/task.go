package task

import (
	"github.com/spf13/cobra"
)

// Cmd returns the task command group.
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Run and monitor background agent tasks",
		Long: "Start a background agent task, follow its progress live, and " +
			"steer or rate it once it is done.",
	}
	cmd.AddCommand(
		NewStartCommand(),
		NewWatchCommand(),
		NewCancelCommand(),
		NewFollowUpCommand(),
		NewFeedbackCommand(),
		NewRecentCommand(),
	)
	return cmd
}
