package helpers

// OutputFormat represents different output formats
type OutputFormat string

const (
	OutputFormatAuto OutputFormat = "auto"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatTUI  OutputFormat = "tui"
)

// Flag names shared by the root and task commands.
const (
	FlagConfig  = "config"
	FlagEnvFile = "env-file"
	FlagFormat  = "format"
	FlagNoColor = "no-color"
)
