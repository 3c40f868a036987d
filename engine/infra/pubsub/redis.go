package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisProvider implements the Provider interface using Redis Pub/Sub.
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider constructs a Provider backed by a Redis client.
func NewRedisProvider(client *redis.Client) (*RedisProvider, error) {
	if client == nil {
		return nil, errors.New("pubsub: redis client is nil")
	}
	return &RedisProvider{client: client}, nil
}

// NewRedisProviderFromURL parses a redis:// URL and connects lazily.
func NewRedisProviderFromURL(rawURL string) (*RedisProvider, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("pubsub: parse redis url: %w", err)
	}
	return NewRedisProvider(redis.NewClient(opts))
}

func (p *RedisProvider) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("pubsub: publish to %s: %w", channel, err)
	}
	return nil
}

func (p *RedisProvider) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ps := p.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan Message, 64)
	sub := &redisSubscription{pubsub: ps, cancel: cancel, messages: out, done: make(chan struct{})}
	go func(messages <-chan *redis.Message) {
		defer close(sub.done)
		defer close(out)
		for {
			select {
			case <-subCtx.Done():
				sub.setErr(subCtx.Err())
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				copied := make([]byte, len(msg.Payload))
				copy(copied, msg.Payload)
				select {
				case out <- Message{Channel: msg.Channel, Payload: copied}:
				case <-subCtx.Done():
					sub.setErr(subCtx.Err())
					return
				}
			}
		}
	}(ps.Channel())

	return sub, nil
}

// Close releases the underlying client.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	messages <-chan Message
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	err      error
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.messages
}

func (s *redisSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *redisSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSubscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
	})
	return err
}
