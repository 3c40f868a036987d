package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/briefcase-hq/briefcase/engine/monitor/stream"
)

// Dialer opens the task push stream over SSE.
type Dialer struct {
	client *Client
}

func (c *Client) Dialer() *Dialer {
	return &Dialer{client: c}
}

// Dial connects to the task stream. The auth token travels as a query
// parameter; reconnects add their reconnect id.
func (d *Dialer) Dial(ctx context.Context, req stream.DialRequest) (stream.Conn, error) {
	r := d.client.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParam("token", d.client.token)
	if req.ReconnectID != "" {
		r.SetQueryParam("reconnect_id", req.ReconnectID)
	}
	path := fmt.Sprintf("/tasks/%s/stream", req.TaskID)
	resp, err := r.Get(path)
	if err != nil {
		return nil, transformRequestError(ctx, http.MethodGet, path, 0, err)
	}
	body := resp.RawBody()
	if resp.StatusCode() >= http.StatusBadRequest {
		defer body.Close()
		raw, _ := io.ReadAll(io.LimitReader(body, 4096))
		return nil, fallbackError(resp.StatusCode(), raw)
	}
	return stream.NewSSEConn(body), nil
}
