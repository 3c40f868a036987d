package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/go-resty/resty/v2"
)

// APIError is a failed response. Retryable carries the server's hint and is
// honored by the start retry policy.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Is matches helpers.ErrAuth for rejected credentials.
func (e *APIError) Is(target error) bool {
	return target == helpers.ErrAuth &&
		(e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

func responseError(resp *resty.Response) error {
	if resp.StatusCode() < http.StatusBadRequest {
		return nil
	}
	if env, ok := resp.Error().(*errorEnvelope); ok && env != nil && env.Error != nil {
		env.Error.Status = resp.StatusCode()
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(resp.StatusCode())
		}
		return env.Error
	}
	return fallbackError(resp.StatusCode(), resp.Body())
}

// fallbackError covers error bodies that do not use the envelope.
func fallbackError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.Status = status
		return env.Error
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
		apiErr.Message = text
	}
	return apiErr
}
