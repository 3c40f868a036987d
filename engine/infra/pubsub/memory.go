package pubsub

import (
	"context"
	"sync"
)

// MemoryProvider is an in-process Provider. Publishing never blocks: a
// subscriber whose buffer is full misses the message.
type MemoryProvider struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: 16,
	}
}

func (p *MemoryProvider) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for sub := range p.subs[channel] {
		copied := make([]byte, len(payload))
		copy(copied, payload)
		sub.deliver(Message{Channel: channel, Payload: copied})
	}
	return nil
}

func (p *MemoryProvider) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sub := &memorySubscription{
		provider: p,
		channel:  channel,
		messages: make(chan Message, p.buffer),
		done:     make(chan struct{}),
	}
	p.mu.Lock()
	if p.subs[channel] == nil {
		p.subs[channel] = make(map[*memorySubscription]struct{})
	}
	p.subs[channel][sub] = struct{}{}
	p.mu.Unlock()
	sub.stop = context.AfterFunc(ctx, func() {
		sub.closeWith(ctx.Err())
	})
	return sub, nil
}

func (p *MemoryProvider) remove(sub *memorySubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set := p.subs[sub.channel]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(p.subs, sub.channel)
		}
	}
}

type memorySubscription struct {
	provider *MemoryProvider
	channel  string
	messages chan Message
	done     chan struct{}
	stop     func() bool
	mu       sync.Mutex
	closed   bool
	err      error
}

func (s *memorySubscription) deliver(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.messages <- msg:
	default:
	}
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.messages
}

func (s *memorySubscription) Done() <-chan struct{} {
	return s.done
}

func (s *memorySubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *memorySubscription) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.closeWith(nil)
	return nil
}

func (s *memorySubscription) closeWith(err error) {
	s.provider.remove(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.messages)
	close(s.done)
}
