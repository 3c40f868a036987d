package config

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/cli/tui/models"
	"github.com/briefcase-hq/briefcase/pkg/config"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management and diagnostics",
	}
	cmd.AddCommand(
		NewConfigShowCommand(),
		NewConfigValidateCommand(),
	)
	return cmd
}

// NewConfigShowCommand creates the config show subcommand
func NewConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration values",
		Long: `Display the effective configuration and where each value came from.
Supports JSON, YAML, and table output formats.`,
		Args: cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			ctx := cobraCmd.Context()
			logger.FromContext(ctx).Debug("executing config show command")
			output, err := cobraCmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("failed to get output flag: %w", err)
			}
			showSources, err := cobraCmd.Flags().GetBool("sources")
			if err != nil {
				return fmt.Errorf("failed to get sources flag: %w", err)
			}
			cfg := config.FromContext(ctx)
			var sources map[string]config.SourceType
			if showSources {
				sources = collectSources(config.ServiceFromContext(ctx), cfg)
			}
			return formatConfigOutput(cobraCmd.OutOrStdout(), cfg, sources, output)
		},
	}
	cmd.Flags().StringP("output", "o", "table", "Output format (json, yaml, table)")
	cmd.Flags().Bool("sources", false, "Show where each value came from")
	return cmd
}

// NewConfigValidateCommand creates the config validate subcommand
func NewConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			ctx := cobraCmd.Context()
			mode := helpers.DetectMode(cobraCmd)
			err := validate(ctx)
			if mode == models.ModeJSON {
				return outputValidationJSON(cobraCmd.OutOrStdout(), err)
			}
			if err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			cobraCmd.Println("✅ Configuration is valid")
			return nil
		},
	}
}

func validate(ctx context.Context) error {
	svc := config.ServiceFromContext(ctx)
	if svc == nil {
		svc = config.NewService()
	}
	return svc.Validate(config.FromContext(ctx))
}

func outputValidationJSON(w io.Writer, err error) error {
	result := map[string]any{"valid": err == nil}
	if err != nil {
		result["error"] = err.Error()
	}
	if werr := helpers.WriteJSON(w, result); werr != nil {
		return werr
	}
	return err
}

// formatConfigOutput formats and outputs configuration based on requested format
func formatConfigOutput(w io.Writer, cfg *config.Config, sources map[string]config.SourceType, format string) error {
	flat, err := flattenConfig(cfg)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		return helpers.WriteJSON(w, configOutput(flat, sources))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return enc.Encode(configOutput(flat, sources))
	case "table":
		return outputTable(w, flat, sources)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func configOutput(flat map[string]string, sources map[string]config.SourceType) map[string]any {
	out := map[string]any{"config": flat}
	if len(sources) > 0 {
		out["sources"] = sources
	}
	return out
}

func outputTable(w io.Writer, flat map[string]string, sources map[string]config.SourceType) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	keys := sortedKeys(flat)
	if sources != nil {
		fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
	} else {
		fmt.Fprintln(tw, "KEY\tVALUE")
	}
	for _, k := range keys {
		if sources != nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", k, flat[k], sources[k])
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", k, flat[k])
	}
	return tw.Flush()
}

// flattenConfig renders every leaf as a string with secrets redacted.
func flattenConfig(cfg *config.Config) (map[string]string, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to flatten configuration: %w", err)
	}
	out := make(map[string]string, len(k.Keys()))
	for key, value := range k.All() {
		switch v := value.(type) {
		case config.SensitiveString:
			out[key] = v.String()
		case time.Duration:
			out[key] = v.String()
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func collectSources(svc config.Service, cfg *config.Config) map[string]config.SourceType {
	sources := make(map[string]config.SourceType)
	flat, err := flattenConfig(cfg)
	if err != nil {
		return sources
	}
	for key := range flat {
		source := config.SourceDefault
		if svc != nil {
			if s := svc.GetSource(key); s != "" {
				source = s
			}
		}
		sources[key] = source
	}
	return sources
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
