package cli

import (
	"fmt"

	configcmd "github.com/briefcase-hq/briefcase/cli/cmd/config"
	"github.com/briefcase-hq/briefcase/cli/cmd/task"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/pkg/config"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	"github.com/briefcase-hq/briefcase/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	flagLogLevel    = "log-level"
	flagLogJSON     = "log-json"
	flagLogSource   = "log-source"
	flagBaseURL     = "base-url"
	flagMetricsAddr = "metrics-addr"
	flagBusDriver   = "bus"
)

// flagPaths maps persistent flags onto configuration keys.
var flagPaths = map[string]string{
	flagBaseURL:     "api.base_url",
	flagMetricsAddr: "runtime.metrics_addr",
	flagLogLevel:    "runtime.log_level",
	flagLogJSON:     "runtime.log_json",
	flagBusDriver:   "bus.driver",
}

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "briefcase",
		Short:         "Briefcase agent task monitor",
		Long:          "Run background agent tasks for your matters and follow them live from the terminal.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupContext(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String(flagLogLevel, "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool(flagLogJSON, false, "Log in JSON format")
	flags.Bool(flagLogSource, false, "Include source locations in logs")
	flags.String(helpers.FlagConfig, "briefcase.yaml", "Path to the configuration file")
	flags.String(helpers.FlagEnvFile, ".env", "Path to a .env file")
	flags.String(helpers.FlagFormat, string(helpers.OutputFormatAuto), "Output format (auto, json, tui)")
	flags.Bool(helpers.FlagNoColor, false, "Disable colored output")
	flags.String(flagBaseURL, "", "Briefcase API base URL")
	flags.String(flagMetricsAddr, "", "Serve Prometheus metrics on this address")
	flags.String(flagBusDriver, "", "Broadcast bus driver (memory, redis)")

	root.AddCommand(
		task.Cmd(),
		configcmd.NewConfigCommand(),
	)
	return root
}

// setupContext loads configuration and installs the logger for the command.
func setupContext(cmd *cobra.Command) error {
	ctx := cmd.Context()
	envFile, err := cmd.Flags().GetString(helpers.FlagEnvFile)
	if err != nil {
		return err
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString(helpers.FlagConfig)
	if err != nil {
		return err
	}
	svc := config.NewService()
	cfg, err := svc.Load(ctx, config.NewYAMLProvider(configFile), config.NewCLIProvider(changedFlags(cmd.Flags())))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	_, _, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, logSource); err != nil {
		return err
	}
	log := logger.GetDefault()
	log.Debug("Configuration loaded", "config_file", configFile, "base_url", cfg.API.BaseURL)
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = config.ContextWithService(ctx, svc)
	cmd.SetContext(ctx)
	return nil
}

// changedFlags collects explicitly set flags keyed by configuration path.
func changedFlags(flags *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	for name, path := range flagPaths {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if f.Value.Type() == "bool" {
			v, err := flags.GetBool(name)
			if err == nil {
				out[path] = v
			}
			continue
		}
		out[path] = f.Value.String()
	}
	return out
}
