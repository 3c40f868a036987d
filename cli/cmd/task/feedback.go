package task

import (
	"context"

	"github.com/briefcase-hq/briefcase/cli/cmd"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

const (
	flagRating     = "rating"
	flagText       = "text"
	flagCorrection = "correction"
)

// NewFeedbackCommand creates the task feedback command.
func NewFeedbackCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "feedback <task-id>",
		Short: "Rate a completed or failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, cmd.ModeHandlers{
				JSON: handleFeedbackJSON,
				TUI:  handleFeedbackTUI,
			}, args)
		},
	}
	command.Flags().Int(flagRating, 0, "Rating from 1 to 5")
	command.Flags().String(flagText, "", "Free-form feedback")
	command.Flags().String(flagCorrection, "", "What the agent should have done instead")
	return command
}

// feedbackFromFlags leaves the rating unset unless --rating was given.
func feedbackFromFlags(cobraCmd *cobra.Command) (agenttask.Feedback, error) {
	var fb agenttask.Feedback
	if cobraCmd.Flags().Changed(flagRating) {
		rating, err := cobraCmd.Flags().GetInt(flagRating)
		if err != nil {
			return fb, err
		}
		fb.Rating = &rating
	}
	var err error
	if fb.Text, err = cobraCmd.Flags().GetString(flagText); err != nil {
		return fb, err
	}
	if fb.Correction, err = cobraCmd.Flags().GetString(flagCorrection); err != nil {
		return fb, err
	}
	return fb, nil
}

// promptFeedback asks for feedback interactively when no flag was given.
func promptFeedback(ctx context.Context, fb *agenttask.Feedback) error {
	rating := 0
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("How did the agent do?").
				Options(
					huh.NewOption("Skip", 0),
					huh.NewOption("5 - Excellent", 5),
					huh.NewOption("4 - Good", 4),
					huh.NewOption("3 - Okay", 3),
					huh.NewOption("2 - Poor", 2),
					huh.NewOption("1 - Unusable", 1),
				).
				Value(&rating),
			huh.NewText().Title("Feedback").Value(&fb.Text),
			huh.NewInput().Title("Correction").Placeholder("What should it have done?").Value(&fb.Correction),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return err
	}
	if rating > 0 {
		fb.Rating = &rating
	}
	return nil
}

func submitFeedback(
	ctx context.Context,
	cobraCmd *cobra.Command,
	executor *cmd.CommandExecutor,
	args []string,
	interactive bool,
) (core.ID, error) {
	fb, err := feedbackFromFlags(cobraCmd)
	if err != nil {
		return "", err
	}
	if interactive && !fb.HasContent() {
		if err := promptFeedback(ctx, &fb); err != nil {
			return "", err
		}
	}
	id := core.ID(args[0])
	return id, executor.Controller().SubmitFeedback(ctx, id, fb)
}

func handleFeedbackJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	id, err := submitFeedback(ctx, cobraCmd, executor, args, false)
	if err != nil {
		return err
	}
	return helpers.WriteJSON(cobraCmd.OutOrStdout(), map[string]any{"taskId": id, "submitted": true})
}

func handleFeedbackTUI(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	id, err := submitFeedback(ctx, cobraCmd, executor, args, true)
	if err != nil {
		return err
	}
	cobraCmd.Printf("Thanks! Feedback recorded for task %s\n", id)
	return nil
}
