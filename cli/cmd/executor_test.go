package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/briefcase-hq/briefcase/cli/api"
	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"Should map cancellation", fmt.Errorf("wrap: %w", context.Canceled), "OPERATION_CANCELED"},
		{"Should map validation errors", agenttask.NewValidationError("goal", "must not be empty"), "VALIDATION_ERROR"},
		{
			"Should map follow-up errors before their cause",
			&agenttask.FollowUpError{Reason: "no active task", Cause: agenttask.ErrNoActiveTask},
			"FOLLOW_UP_FAILED",
		},
		{"Should map cancel errors", &agenttask.CancelError{TaskID: "t1", Cause: errors.New("boom")}, "CANCEL_FAILED"},
		{"Should map feedback errors", &agenttask.FeedbackError{TaskID: "t1", Reason: "duplicate"}, "FEEDBACK_REJECTED"},
		{
			"Should map exhausted retries",
			fmt.Errorf("%w: %w", agenttask.ErrRetriesExhausted, &api.APIError{Status: 503, Retryable: true}),
			"RETRIES_EXHAUSTED",
		},
		{"Should map a missing task", agenttask.ErrNoActiveTask, "NO_ACTIVE_TASK"},
		{"Should map network errors", helpers.NewNetworkError("GET /tasks/active", errors.New("refused")), "NETWORK_ERROR"},
		{"Should map auth errors", helpers.NewAuthError("token missing"), "AUTH_ERROR"},
		{
			"Should map request timeouts before the deadline they wrap",
			helpers.NewTimeoutError("GET /api/v1/tasks/active", 30*time.Second, context.DeadlineExceeded),
			"REQUEST_TIMEOUT",
		},
		{"Should map rejected credentials as auth errors", &api.APIError{Status: 401, Message: "bad token"}, "AUTH_ERROR"},
		{"Should map API errors", &api.APIError{Status: 409, Code: "conflict", Message: "task already running"}, "API_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cliErr := categorizeError(tc.err)
			require.NotNil(t, cliErr)
			assert.Equal(t, tc.code, cliErr.Code)
		})
	}
	t.Run("Should leave unknown errors alone", func(t *testing.T) {
		assert.Nil(t, categorizeError(errors.New("something else")))
	})
	t.Run("Should keep the cause reachable", func(t *testing.T) {
		err := &agenttask.CancelError{TaskID: "t1", Cause: errors.New("boom")}
		var target *agenttask.CancelError
		assert.ErrorAs(t, categorizeError(err), &target)
	})
}
