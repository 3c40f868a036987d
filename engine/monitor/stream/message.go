package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/tidwall/gjson"
)

type MessageType string

const (
	MessageConnected    MessageType = "connected"
	MessageHistory      MessageType = "history"
	MessageEvent        MessageType = "event"
	MessageProgress     MessageType = "progress"
	MessageTaskComplete MessageType = "task_complete"
	MessageHeartbeat    MessageType = "heartbeat"
)

// Message is one named message received on the task stream.
type Message struct {
	Type MessageType
	ID   string
	Data json.RawMessage
}

// History is the payload of a history message.
type History struct {
	Events         []agenttask.StreamEvent `json:"events"`
	IsReconnection bool                    `json:"isReconnection"`
}

func (m Message) History() (History, error) {
	var h History
	if err := m.decode(&h); err != nil {
		return History{}, err
	}
	return h, nil
}

func (m Message) Event() (agenttask.StreamEvent, error) {
	var ev agenttask.StreamEvent
	if err := m.decode(&ev); err != nil {
		return agenttask.StreamEvent{}, err
	}
	return ev, nil
}

// Progress decodes the field-level progress update. Unknown or client-only
// statuses are dropped so they cannot alter the task.
func (m Message) Progress() (agenttask.ProgressUpdate, error) {
	var u agenttask.ProgressUpdate
	if err := m.decode(&u); err != nil {
		return agenttask.ProgressUpdate{}, err
	}
	if u.Status != nil && !u.Status.IsServerStatus() {
		u.Status = nil
	}
	return u, nil
}

// Summary returns the completion summary, falling back to the message text.
func (m Message) Summary() string {
	if len(m.Data) == 0 || !gjson.ValidBytes(m.Data) {
		return strings.TrimSpace(string(m.Data))
	}
	parsed := gjson.ParseBytes(m.Data)
	if parsed.Type == gjson.String {
		return parsed.String()
	}
	if s := parsed.Get("summary"); s.Exists() && s.String() != "" {
		return s.String()
	}
	return parsed.Get("message").String()
}

func (m Message) decode(out any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("stream: empty %s payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, out); err != nil {
		return fmt.Errorf("stream: decode %s payload: %w", m.Type, err)
	}
	return nil
}

// resolveType returns the message name, sniffing a "type" field when the
// server sent an unnamed event.
func resolveType(event string, data []byte) MessageType {
	if event != "" && event != "message" {
		return MessageType(event)
	}
	if t := gjson.GetBytes(data, "type"); t.Exists() {
		return MessageType(t.String())
	}
	return MessageType(event)
}
