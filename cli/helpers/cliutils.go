package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briefcase-hq/briefcase/cli/tui/models"
	"github.com/charmbracelet/lipgloss"
)

// CliError represents a CLI-specific error with enhanced context
type CliError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	cause     error
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CliError) Unwrap() error {
	return e.cause
}

// NewCliError creates a new CLI error with context
func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WithContext adds context to the error
func (e *CliError) WithContext(key string, value any) *CliError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause keeps the original error reachable through errors.Is/As.
func (e *CliError) WithCause(err error) *CliError {
	e.cause = err
	return e
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		strings.Contains(strings.ToLower(err.Error()), "timed out")
}

// IsNetworkError checks if an error is a network-related error
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{"connection refused", "connection reset", "no route to host", "network unreachable"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

// IsAuthError checks if an error is authentication-related
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAuth)
}

// FormatError formats errors based on output mode
func FormatError(err error, mode models.Mode) string {
	if err == nil {
		return ""
	}
	switch mode {
	case models.ModeJSON:
		return formatErrorJSON(err)
	case models.ModeTUI:
		return formatErrorTUI(err)
	default:
		return err.Error()
	}
}

func formatErrorJSON(err error) string {
	message, details := extractErrorInfo(err)
	resp := map[string]any{"error": message, "details": details}
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		resp["code"] = cliErr.Code
	}
	raw, mErr := json.MarshalIndent(resp, "", "  ")
	if mErr != nil {
		return `{"error": "JSON marshaling failed", "details": ""}`
	}
	return string(raw)
}

func formatErrorTUI(err error) string {
	message, details := extractErrorInfo(err)
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	result := fmt.Sprintf("%s %s", getErrorIcon(err), style.Render(message))
	if details != "" {
		detailStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
		result += "\n" + detailStyle.Render("Details: "+details)
	}
	return result
}

func extractErrorInfo(err error) (message, details string) {
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		return cliErr.Message, cliErr.Details
	}
	return err.Error(), ""
}

func getErrorIcon(err error) string {
	switch {
	case IsNetworkError(err):
		return "🌐"
	case IsAuthError(err):
		return "🔐"
	case IsTimeoutError(err):
		return "⏰"
	default:
		return "❌"
	}
}

// OutputError outputs an error to stderr in the appropriate format
func OutputError(err error, mode models.Mode) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, FormatError(err, mode))
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate shortens s to maxLength runes, adding an ellipsis when it fits.
func Truncate(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-3]) + "..."
}

// WriteJSONLine writes v as a single line of compact JSON.
func WriteJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
