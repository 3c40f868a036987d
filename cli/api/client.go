package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/briefcase-hq/briefcase/cli/helpers"
	"github.com/briefcase-hq/briefcase/pkg/config"
	"github.com/briefcase-hq/briefcase/pkg/logger"
	"github.com/briefcase-hq/briefcase/pkg/version"
	"github.com/go-resty/resty/v2"
)

const apiPrefix = "/api/v1"

// Client talks to the Briefcase task API. It implements monitor.TaskAPI and,
// through Dialer, the push stream.
type Client struct {
	http    *resty.Client
	stream  *resty.Client
	baseURL string
	token   string
	timeout time.Duration
}

// NewClient builds a client from the API section of cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	baseURL, err := buildBaseURL(cfg.API.BaseURL)
	if err != nil {
		return nil, err
	}
	token := cfg.API.Token.Value()
	if token == "" {
		return nil, helpers.NewAuthError("API token is required (set api.token or BRIEFCASE_TOKEN)")
	}
	return &Client{
		http:    buildHTTPClient(cfg, baseURL, token),
		stream:  buildStreamClient(baseURL),
		baseURL: baseURL,
		token:   token,
		timeout: cfg.API.Timeout,
	}, nil
}

func buildBaseURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "", fmt.Errorf("base URL must be absolute, got: %s", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("base URL scheme must be http or https, got: %s", parsed.Scheme)
	}
	return parsed.String() + apiPrefix, nil
}

func buildHTTPClient(cfg *config.Config, baseURL, token string) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.API.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		SetHeader("Authorization", "Bearer "+token).
		SetRetryCount(cfg.API.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	client.AddRetryCondition(retryCondition)
	if cfg.Runtime.LogLevel == "debug" {
		client.SetDebug(true)
	}
	return client
}

// buildStreamClient has no overall timeout since streams stay open for the
// whole task.
func buildStreamClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "text/event-stream").
		SetHeader("User-Agent", version.UserAgent()).
		SetHeader("Cache-Control", "no-cache")
}

// retryCondition retries transport failures and gateway errors of idempotent
// requests. Start and other mutations are never replayed by the transport.
func retryCondition(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil {
		return false
	}
	if r.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	code := r.StatusCode()
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout || code == http.StatusTooManyRequests
}

// do performs a request and decodes the result or the error envelope.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	log := logger.FromContext(ctx)
	req := c.http.R().SetContext(ctx).SetError(&errorEnvelope{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return transformRequestError(ctx, method, path, c.timeout, err)
	}
	if err := responseError(resp); err != nil {
		log.Debug("API request failed", "method", method, "path", path, "status", resp.StatusCode(), "error", err)
		return err
	}
	log.Debug("API request completed", "method", method, "path", path, "status", resp.StatusCode())
	return nil
}

// transformRequestError classifies transport failures. Timeouts report the
// client timeout unless the caller's own deadline fired first.
func transformRequestError(ctx context.Context, method, path string, timeout time.Duration, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("request canceled: %w", err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		if ctx.Err() != nil {
			timeout = 0
		}
		return helpers.NewTimeoutError(method+" "+path, timeout, err)
	default:
		return helpers.NewNetworkError(method+" "+path, err)
	}
}
