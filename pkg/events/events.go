// Package events delivers wake-up signals between the processes that accept
// workflow events and the runs that wait on them. Payloads are opaque bytes;
// delivery is best effort, so subscribers must treat a message as a hint to
// re-check durable state rather than as the state itself.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/tagger/pkg/lifecycle"
)

// ErrClosed is returned when publishing or subscribing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// Bus publishes payloads to topics and hands out subscriptions.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Start(lc *lifecycle.Coordinator) error
}

// Subscription receives payloads published to one topic. C is closed after
// Close returns or the subscribing context is cancelled.
type Subscription interface {
	C() <-chan []byte
	Close() error
}

// New creates the bus selected by cfg.Provider.
func New(cfg *Config, logger *slog.Logger) (Bus, error) {
	logger = logger.With("system", "events", "provider", cfg.Provider)

	switch cfg.Provider {
	case ProviderMemory:
		return NewMemory(cfg.Prefix, logger), nil
	case ProviderRedis:
		return newRedis(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event provider: %s", cfg.Provider)
	}
}

func topicKey(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + ":" + topic
}
