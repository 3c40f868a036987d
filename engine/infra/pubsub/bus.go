package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briefcase-hq/briefcase/engine/core"
	"github.com/briefcase-hq/briefcase/pkg/logger"
)

const (
	TopicTaskStarted  = "tasks.started"
	TopicTaskFinished = "tasks.finished"
)

// Envelope wraps a bus payload with an id so subscribers can drop replays.
type Envelope struct {
	ID    core.ID         `json:"id"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Bus publishes typed JSON messages on prefixed channels of a Provider.
type Bus struct {
	provider Provider
	prefix   string
}

func NewBus(provider Provider, prefix string) *Bus {
	return &Bus{provider: provider, prefix: strings.Trim(prefix, ".")}
}

// Channel returns the provider channel name for topic.
func (b *Bus) Channel(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + "." + topic
}

// Publish is fire-and-forget: failures are logged and never returned to the caller.
func (b *Bus) Publish(ctx context.Context, topic string, data any) {
	if b == nil || b.provider == nil {
		return
	}
	if err := b.publish(ctx, topic, data); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish bus message", "topic", topic, "error", err)
	}
}

func (b *Bus) publish(ctx context.Context, topic string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	id, err := core.NewID()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{ID: id, Topic: topic, Data: raw})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", topic, err)
	}
	return b.provider.Publish(ctx, b.Channel(topic), payload)
}

// Subscribe returns a subscription on the prefixed channel for topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	return b.provider.Subscribe(ctx, b.Channel(topic))
}

// Decode unpacks a bus message into out and returns its envelope.
func Decode(msg Message, out any) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("decode %s payload: %w", env.Topic, err)
		}
	}
	return env, nil
}
