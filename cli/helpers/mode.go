package helpers

import (
	"os"

	"github.com/briefcase-hq/briefcase/cli/tui/models"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// isRunningInCI checks if we're running in a CI/CD environment
func isRunningInCI() bool {
	if os.Getenv("CI") != "" {
		return true
	}
	for _, v := range []string{"GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "BUILDKITE", "JENKINS_URL", "TF_BUILD"} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// isInteractiveEnvironment reports whether a TUI can be drawn.
func isInteractiveEnvironment() bool {
	if isRunningInCI() {
		return false
	}
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}

// ModeFromFormat resolves an explicit format; auto defers to the environment.
func ModeFromFormat(format OutputFormat, interactive bool) models.Mode {
	switch format {
	case OutputFormatJSON:
		return models.ModeJSON
	case OutputFormatTUI:
		return models.ModeTUI
	}
	if interactive {
		return models.ModeTUI
	}
	return models.ModeJSON
}

// DetectMode picks the output mode from the --format flag and the terminal.
func DetectMode(cmd *cobra.Command) models.Mode {
	format := OutputFormatAuto
	if f := cmd.Flags().Lookup(FlagFormat); f != nil {
		format = OutputFormat(f.Value.String())
	}
	return ModeFromFormat(format, isInteractiveEnvironment())
}

// ShouldUseColor determines if colored output should be used
func ShouldUseColor(cmd *cobra.Command) bool {
	if noColor, err := cmd.Flags().GetBool(FlagNoColor); err == nil && noColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(os.Stdout) && !isRunningInCI()
}
