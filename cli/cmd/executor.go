package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/briefcase-hq/briefcase/cli/api"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/cli/tui/models"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/infra/monitoring"
	"github.com/briefcase-hq/briefcase/engine/infra/pubsub"
	"github.com/briefcase-hq/briefcase/engine/monitor"
	"github.com/briefcase-hq/briefcase/pkg/config"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	"github.com/spf13/cobra"
)

const metricsShutdownTimeout = 5 * time.Second

// CommandExecutor handles common setup and execution patterns for CLI commands.
// It owns the API client, the broadcast bus, metrics, and the task monitor.
type CommandExecutor struct {
	mode       models.Mode
	cfg        *config.Config
	client     *api.Client
	bus        *pubsub.Bus
	controller *monitor.Controller
	closers    []func(context.Context) error
}

// HandlerFunc defines the signature for command handlers.
type HandlerFunc func(ctx context.Context, cmd *cobra.Command, executor *CommandExecutor, args []string) error

// ModeHandlers contains handlers for different execution modes.
type ModeHandlers struct {
	JSON HandlerFunc
	TUI  HandlerFunc
}

// ExecutorOptions allows customization of the command executor
type ExecutorOptions struct {
	// Notifier is told when the monitored task reaches a final state.
	Notifier monitor.Notifier
}

// NewCommandExecutor creates a new command executor with all necessary setup.
func NewCommandExecutor(cmd *cobra.Command, opts ExecutorOptions) (*CommandExecutor, error) {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)
	mode := helpers.DetectMode(cmd)
	log.Debug("detected execution mode", "mode", mode)
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	executor := &CommandExecutor{mode: mode, cfg: cfg}
	if err := executor.setup(ctx, opts); err != nil {
		executor.Close(ctx)
		return nil, err
	}
	return executor, nil
}

func (e *CommandExecutor) setup(ctx context.Context, opts ExecutorOptions) error {
	client, err := api.NewClient(e.cfg)
	if err != nil {
		return err
	}
	e.client = client
	bus, err := e.buildBus()
	if err != nil {
		return err
	}
	e.bus = bus
	metrics, err := e.buildMetrics(ctx)
	if err != nil {
		return err
	}
	monOpts := monitor.OptionsFromConfig(e.cfg)
	monOpts.Metrics = metrics
	monOpts.Stream.Metrics = metrics
	monOpts.Poll.Metrics = metrics
	controller, err := monitor.NewController(monitor.Dependencies{
		API:      client,
		Dialer:   client.Dialer(),
		Bus:      bus,
		Notifier: opts.Notifier,
	}, monOpts)
	if err != nil {
		return fmt.Errorf("failed to create task monitor: %w", err)
	}
	e.controller = controller
	e.closers = append(e.closers, func(context.Context) error {
		controller.Close()
		return nil
	})
	return nil
}

func (e *CommandExecutor) buildBus() (*pubsub.Bus, error) {
	switch e.cfg.Bus.Driver {
	case "redis":
		provider, err := pubsub.NewRedisProviderFromURL(e.cfg.Bus.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect bus: %w", err)
		}
		e.closers = append(e.closers, func(context.Context) error { return provider.Close() })
		return pubsub.NewBus(provider, e.cfg.Bus.ChannelPrefix), nil
	default:
		return pubsub.NewBus(pubsub.NewMemoryProvider(), e.cfg.Bus.ChannelPrefix), nil
	}
}

// buildMetrics serves /metrics when an address is configured.
func (e *CommandExecutor) buildMetrics(ctx context.Context) (*monitoring.MonitorMetrics, error) {
	addr := e.cfg.Runtime.MetricsAddr
	if addr == "" {
		return nil, nil
	}
	svc, err := monitoring.NewMonitoringService(ctx)
	if err != nil {
		return nil, err
	}
	svc.SetAsGlobal()
	metrics, err := monitoring.NewMonitorMetrics(svc.Meter())
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", svc.ExporterHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FromContext(ctx).Error("Metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.FromContext(ctx).Debug("Serving metrics", "addr", addr)
	e.closers = append(e.closers, srv.Shutdown, svc.Shutdown)
	return metrics, nil
}

// Close releases everything the executor created, newest first.
func (e *CommandExecutor) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
	defer cancel()
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			logger.FromContext(ctx).Debug("Cleanup failed", "error", err)
		}
	}
	e.closers = nil
}

// Execute runs the appropriate handler based on the detected mode.
func (e *CommandExecutor) Execute(ctx context.Context, cmd *cobra.Command, handlers ModeHandlers, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	switch e.mode {
	case models.ModeJSON:
		if handlers.JSON == nil {
			return fmt.Errorf("JSON mode handler not implemented")
		}
		return handlers.JSON(ctx, cmd, e, args)
	case models.ModeTUI:
		if handlers.TUI == nil {
			return fmt.Errorf("TUI mode handler not implemented")
		}
		return handlers.TUI(ctx, cmd, e, args)
	default:
		return fmt.Errorf("unsupported mode: %s", e.mode)
	}
}

func (e *CommandExecutor) Controller() *monitor.Controller {
	return e.controller
}

func (e *CommandExecutor) Bus() *pubsub.Bus {
	return e.bus
}

func (e *CommandExecutor) Config() *config.Config {
	return e.cfg
}

// GetMode returns the detected execution mode.
func (e *CommandExecutor) GetMode() models.Mode {
	return e.mode
}

// ExecuteCommand is a convenience function that combines executor creation and execution.
func ExecuteCommand(cmd *cobra.Command, opts ExecutorOptions, handlers ModeHandlers, args []string) error {
	executor, err := NewCommandExecutor(cmd, opts)
	if err != nil {
		return HandleCommonErrors(err, helpers.DetectMode(cmd))
	}
	defer executor.Close(cmd.Context())
	return HandleCommonErrors(executor.Execute(cmd.Context(), cmd, handlers, args), executor.GetMode())
}

// HandleCommonErrors provides consistent error handling across all commands.
func HandleCommonErrors(err error, mode models.Mode) error {
	if err == nil {
		return nil
	}
	cliErr := categorizeError(err)
	if cliErr != nil {
		helpers.OutputError(cliErr, mode)
		return cliErr
	}
	helpers.OutputError(err, mode)
	return err
}

// categorizeError converts errors to structured CLI errors
func categorizeError(err error) *helpers.CliError {
	var (
		validationErr *agenttask.ValidationError
		cancelErr     *agenttask.CancelError
		followUpErr   *agenttask.FollowUpError
		feedbackErr   *agenttask.FeedbackError
		apiErr        *api.APIError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return helpers.NewCliError("OPERATION_CANCELED", "Operation was canceled by user")
	case errors.Is(err, helpers.ErrTimeout):
		return helpers.NewCliError("REQUEST_TIMEOUT", "Request timed out", err.Error()).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return helpers.NewCliError("OPERATION_TIMEOUT", "Operation timed out")
	case errors.As(err, &validationErr):
		return helpers.NewCliError("VALIDATION_ERROR", validationErr.Error()).WithCause(err)
	case errors.As(err, &followUpErr):
		return helpers.NewCliError("FOLLOW_UP_FAILED", followUpErr.Error()).WithCause(err)
	case errors.As(err, &cancelErr):
		return helpers.NewCliError("CANCEL_FAILED", "Task was stopped locally but the server did not confirm",
			cancelErr.Error()).WithCause(err)
	case errors.As(err, &feedbackErr):
		return helpers.NewCliError("FEEDBACK_REJECTED", feedbackErr.Error()).WithCause(err)
	case errors.Is(err, agenttask.ErrRetriesExhausted):
		return helpers.NewCliError("RETRIES_EXHAUSTED", "Maximum retries reached", err.Error()).WithCause(err)
	case errors.Is(err, agenttask.ErrNoActiveTask):
		return helpers.NewCliError("NO_ACTIVE_TASK", "No task is running")
	case helpers.IsTimeoutError(err):
		return helpers.NewCliError("REQUEST_TIMEOUT", "Request timed out", err.Error()).WithCause(err)
	case helpers.IsNetworkError(err):
		return helpers.NewCliError("NETWORK_ERROR", "Network connection failed", err.Error()).WithCause(err)
	case helpers.IsAuthError(err):
		return helpers.NewCliError("AUTH_ERROR", "Authentication failed", err.Error()).WithCause(err)
	case errors.As(err, &apiErr):
		return helpers.NewCliError("API_ERROR", apiErr.Message, apiErr.Error()).
			WithContext("status", apiErr.Status).
			WithContext("retryable", apiErr.IsRetryable()).
			WithCause(err)
	default:
		return nil
	}
}
