package task

import (
	"context"
	"fmt"

	"github.com/briefcase-hq/briefcase/cli/cmd"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/cli/tui/styles"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

const flagLimit = "limit"

// NewRecentCommand creates the task recent command.
func NewRecentCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "recent",
		Aliases: []string{"ls"},
		Short:   "List the most recent tasks",
		Args:    cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, cmd.ModeHandlers{
				JSON: handleRecentJSON,
				TUI:  handleRecentTUI,
			}, args)
		},
	}
	command.Flags().Int(flagLimit, 0, "Number of tasks to list (defaults to monitor.recent_limit)")
	return command
}

func fetchRecent(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor) ([]*agenttask.Task, error) {
	limit, err := cobraCmd.Flags().GetInt(flagLimit)
	if err != nil {
		return nil, err
	}
	return executor.Controller().Recent(ctx, limit)
}

func handleRecentJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	tasks, err := fetchRecent(ctx, cobraCmd, executor)
	if err != nil {
		return err
	}
	return helpers.WriteJSON(cobraCmd.OutOrStdout(), map[string]any{"tasks": tasks})
}

func handleRecentTUI(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	tasks, err := fetchRecent(ctx, cobraCmd, executor)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		cobraCmd.Println(styles.MutedStyle.Render("No recent tasks"))
		return nil
	}
	cobraCmd.Println(renderRecent(tasks))
	return nil
}

func renderRecent(tasks []*agenttask.Task) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorPrimary)).
		Headers("ID", "STATUS", "PROGRESS", "GOAL", "CREATED")
	for _, task := range tasks {
		t.Row(
			task.ID.String(),
			styles.StatusBadge(task.Status),
			fmt.Sprintf("%d%%", task.Progress.Percent),
			helpers.Truncate(task.Goal, 48),
			task.CreatedAt.Local().Format("Jan 02 15:04"),
		)
	}
	return t.Render()
}
