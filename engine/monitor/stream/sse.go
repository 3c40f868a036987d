package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
)

// SSEConn decodes a text/event-stream body into Messages.
type SSEConn struct {
	body   io.ReadCloser
	reader *bufio.Reader
	once   sync.Once
}

// NewSSEConn wraps body; Close closes it.
func NewSSEConn(body io.ReadCloser) *SSEConn {
	return &SSEConn{body: body, reader: bufio.NewReader(body)}
}

// Recv blocks until the next complete message. It returns io.EOF when the
// server closes the stream.
func (c *SSEConn) Recv() (Message, error) {
	var (
		id, event string
		data      strings.Builder
		hasData   bool
	)
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil && line == "" {
			// An unterminated trailing message is discarded.
			if errors.Is(err, io.EOF) {
				return Message{}, io.EOF
			}
			return Message{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if !hasData && event == "" {
				continue
			}
			raw := []byte(data.String())
			return Message{Type: resolveType(event, raw), ID: id, Data: raw}, nil
		case strings.HasPrefix(line, ":"):
			// comment
		default:
			field, value := line, ""
			if idx := strings.IndexByte(line, ':'); idx >= 0 {
				field = line[:idx]
				value = strings.TrimPrefix(line[idx+1:], " ")
			}
			switch field {
			case "id":
				id = value
			case "event":
				event = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			}
		}
	}
}

func (c *SSEConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.body.Close()
	})
	return err
}
