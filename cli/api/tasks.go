package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/core"
)

type taskEnvelope struct {
	Task *agenttask.Task `json:"task"`
}

type activeEnvelope struct {
	Active bool            `json:"active"`
	Task   *agenttask.Task `json:"task,omitempty"`
}

type recentEnvelope struct {
	Tasks []*agenttask.Task `json:"tasks"`
}

func (c *Client) StartTask(ctx context.Context, req agenttask.StartRequest) (*agenttask.Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &out); err != nil {
		return nil, err
	}
	if out.Task == nil || out.Task.ID.IsZero() {
		return nil, fmt.Errorf("start task: response carries no task id")
	}
	return out.Task, nil
}

func (c *Client) CancelTask(ctx context.Context, id core.ID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%s/cancel", id), nil, nil)
}

func (c *Client) SendFollowUp(ctx context.Context, id core.ID, message string) error {
	body := map[string]string{"message": message}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%s/follow-up", id), body, nil)
}

// GetActiveTask returns nil when the server reports no active task.
func (c *Client) GetActiveTask(ctx context.Context) (*agenttask.Task, error) {
	var out activeEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks/active", nil, &out); err != nil {
		return nil, err
	}
	if !out.Active || out.Task == nil {
		return nil, nil
	}
	return out.Task, nil
}

func (c *Client) GetRecentTasks(ctx context.Context, limit int) ([]*agenttask.Task, error) {
	var out recentEnvelope
	path := "/tasks/recent?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id core.ID) (*agenttask.Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%s", id), nil, &out); err != nil {
		return nil, err
	}
	if out.Task == nil {
		return nil, fmt.Errorf("get task %s: empty response", id)
	}
	return out.Task, nil
}

func (c *Client) SubmitFeedback(ctx context.Context, id core.ID, feedback agenttask.Feedback) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%s/feedback", id), feedback, nil)
}
