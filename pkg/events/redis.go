package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/tagger/pkg/lifecycle"
)

const pingTimeout = 5 * time.Second

type redisBus struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func newRedis(cfg *Config, logger *slog.Logger) *redisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &redisBus{
		client: client,
		prefix: cfg.Prefix,
		logger: logger,
	}
}

func (r *redisBus) Start(lc *lifecycle.Coordinator) error {
	r.logger.Info("starting redis event bus")

	lc.OnStartup(func() {
		ctx, cancel := context.WithTimeout(lc.Context(), pingTimeout)
		defer cancel()

		if err := r.client.Ping(ctx).Err(); err != nil {
			r.logger.Error("redis ping failed", "error", err)
			return
		}
		r.logger.Info("redis event bus connected")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := r.client.Close(); err != nil {
			r.logger.Error("redis close failed", "error", err)
			return
		}
		r.logger.Info("redis event bus closed")
	})

	return nil
}

func (r *redisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topicKey(r.prefix, topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed so a publish issued
// after Subscribe returns is not missed.
func (r *redisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, topicKey(r.prefix, topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &redisSub{
		pubsub: pubsub,
		ch:     make(chan []byte, memoryBuffer),
		done:   make(chan struct{}),
	}

	go sub.forward(pubsub.Channel())
	context.AfterFunc(ctx, func() { sub.Close() })

	return sub, nil
}

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *redisSub) forward(msgs <-chan *redis.Message) {
	defer close(s.ch)

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case s.ch <- []byte(msg.Payload):
			default:
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) C() <-chan []byte {
	return s.ch
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
