package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/JaimeStill/tagger/pkg/lifecycle"
)

const memoryBuffer = 16

// Memory is an in-process Bus.
type Memory struct {
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

// NewMemory creates an in-process bus whose topics are namespaced by prefix.
func NewMemory(prefix string, logger *slog.Logger) *Memory {
	return &Memory{
		prefix: prefix,
		logger: logger,
		subs:   make(map[string]map[*memorySub]struct{}),
	}
}

func (m *Memory) Start(lc *lifecycle.Coordinator) error {
	m.logger.Info("starting in-memory event bus")

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		m.close()
	})

	return nil
}

// Publish delivers payload to every current subscriber of topic. A full
// subscriber buffer drops the payload for that subscriber.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	key := topicKey(m.prefix, topic)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for sub := range m.subs[key] {
		select {
		case sub.ch <- payload:
		default:
			m.logger.Warn("dropping event for slow subscriber", "topic", key)
		}
	}

	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	key := topicKey(m.prefix, topic)
	sub := &memorySub{
		bus: m,
		key: key,
		ch:  make(chan []byte, memoryBuffer),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.subs[key] == nil {
		m.subs[key] = make(map[*memorySub]struct{})
	}
	m.subs[key][sub] = struct{}{}
	m.mu.Unlock()

	context.AfterFunc(ctx, func() { sub.Close() })

	return sub, nil
}

// Subscribers returns the number of live subscriptions for topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topicKey(m.prefix, topic)])
}

func (m *Memory) remove(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.subs[sub.key]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(m.subs, sub.key)
		}
	}
}

func (m *Memory) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for key, set := range m.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(m.subs, key)
	}
}

type memorySub struct {
	bus  *Memory
	key  string
	ch   chan []byte
	once sync.Once
}

func (s *memorySub) C() <-chan []byte {
	return s.ch
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.remove(s)
	})
	return nil
}
