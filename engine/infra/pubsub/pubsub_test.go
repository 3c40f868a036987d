package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestMemoryProvider(t *testing.T) {
	t.Run("Should deliver published payloads to every subscriber", func(t *testing.T) {
		p := NewMemoryProvider()
		ctx := context.Background()
		a, err := p.Subscribe(ctx, "ch")
		require.NoError(t, err)
		b, err := p.Subscribe(ctx, "ch")
		require.NoError(t, err)
		defer a.Close()
		defer b.Close()

		require.NoError(t, p.Publish(ctx, "ch", []byte("hello")))
		assert.Equal(t, []byte("hello"), receive(t, a).Payload)
		assert.Equal(t, []byte("hello"), receive(t, b).Payload)
	})

	t.Run("Should succeed without subscribers", func(t *testing.T) {
		assert.NoError(t, NewMemoryProvider().Publish(context.Background(), "nobody", []byte("x")))
	})

	t.Run("Should close the subscription when the context ends", func(t *testing.T) {
		p := NewMemoryProvider()
		ctx, cancel := context.WithCancel(context.Background())
		sub, err := p.Subscribe(ctx, "ch")
		require.NoError(t, err)

		cancel()
		select {
		case <-sub.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("subscription not closed")
		}
		assert.ErrorIs(t, sub.Err(), context.Canceled)
		assert.NoError(t, sub.Close())
		assert.NoError(t, p.Publish(context.Background(), "ch", []byte("late")))
	})
}

func TestRedisProvider(t *testing.T) {
	t.Run("Should round-trip messages through redis", func(t *testing.T) {
		s := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: s.Addr()})
		p, err := NewRedisProvider(client)
		require.NoError(t, err)
		defer p.Close()
		ctx := context.Background()

		sub, err := p.Subscribe(ctx, "briefcase.tasks.started")
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, p.Publish(ctx, "briefcase.tasks.started", []byte(`{"x":1}`)))
		msg := receive(t, sub)
		assert.Equal(t, "briefcase.tasks.started", msg.Channel)
		assert.JSONEq(t, `{"x":1}`, string(msg.Payload))
	})

	t.Run("Should reject a nil client", func(t *testing.T) {
		_, err := NewRedisProvider(nil)
		assert.Error(t, err)
	})

	t.Run("Should reject malformed urls", func(t *testing.T) {
		_, err := NewRedisProviderFromURL("://nope")
		assert.Error(t, err)
	})
}

func TestBus(t *testing.T) {
	t.Run("Should publish typed task started signals on prefixed channels", func(t *testing.T) {
		p := NewMemoryProvider()
		bus := NewBus(p, "briefcase")
		ctx := context.Background()
		sub, err := bus.Subscribe(ctx, TopicTaskStarted)
		require.NoError(t, err)
		defer sub.Close()

		bus.Publish(ctx, TopicTaskStarted, agenttask.TaskStarted{TaskID: "t1", Goal: "Review documents for matter 42"})

		msg := receive(t, sub)
		assert.Equal(t, "briefcase.tasks.started", msg.Channel)
		var started agenttask.TaskStarted
		env, err := Decode(msg, &started)
		require.NoError(t, err)
		assert.Equal(t, TopicTaskStarted, env.Topic)
		assert.False(t, env.ID.IsZero())
		assert.Equal(t, "t1", started.TaskID)
	})

	t.Run("Should not fail when nobody listens or no provider is set", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewBus(NewMemoryProvider(), "").Publish(context.Background(), TopicTaskFinished, map[string]string{})
			var bus *Bus
			bus.Publish(context.Background(), TopicTaskFinished, nil)
		})
	})

	t.Run("Should swallow unserializable payloads", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewBus(NewMemoryProvider(), "x").Publish(context.Background(), TopicTaskStarted, func() {})
		})
	})
}
