package events_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/JaimeStill/tagger/pkg/events"
	"github.com/JaimeStill/tagger/pkg/lifecycle"
)

func newBus() *events.Memory {
	return events.NewMemory("test", slog.New(slog.DiscardHandler))
}

func receive(t *testing.T, sub events.Subscription) []byte {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	ctx := context.Background()
	bus := newBus()

	a, err := bus.Subscribe(ctx, "instance-1")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := bus.Subscribe(ctx, "instance-1")
	other, _ := bus.Subscribe(ctx, "instance-2")

	if err := bus.Publish(ctx, "instance-1", []byte("tag-approval")); err != nil {
		t.Fatal(err)
	}

	if got := receive(t, a); string(got) != "tag-approval" {
		t.Errorf("a: got %q", got)
	}
	if got := receive(t, b); string(got) != "tag-approval" {
		t.Errorf("b: got %q", got)
	}

	select {
	case msg := <-other.C():
		t.Errorf("other topic received %q", msg)
	default:
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	ctx := context.Background()
	bus := newBus()

	sub, _ := bus.Subscribe(ctx, "instance-1")
	if bus.Subscribers("instance-1") != 1 {
		t.Fatalf("subscribers: got %d, want 1", bus.Subscribers("instance-1"))
	}

	sub.Close()
	sub.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed")
	}
	if bus.Subscribers("instance-1") != 0 {
		t.Errorf("subscribers after close: got %d", bus.Subscribers("instance-1"))
	}
}

func TestContextCancelUnsubscribes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := newBus()

	sub, _ := bus.Subscribe(ctx, "instance-1")
	cancel()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestShutdownClosesBus(t *testing.T) {
	lc := lifecycle.New()
	bus := newBus()
	if err := bus.Start(lc); err != nil {
		t.Fatal(err)
	}

	sub, _ := bus.Subscribe(context.Background(), "instance-1")
	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	if _, ok := <-sub.C(); ok {
		t.Error("subscription should be closed on shutdown")
	}
	if err := bus.Publish(context.Background(), "instance-1", nil); !errors.Is(err, events.ErrClosed) {
		t.Errorf("publish after shutdown: got %v, want ErrClosed", err)
	}
	sub.Close()
}

func TestConfigFinalize(t *testing.T) {
	cfg := events.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "memory" || cfg.Prefix != "tagger" {
		t.Errorf("defaults: %+v", cfg)
	}

	t.Setenv("TEST_EVENTS_PROVIDER", "redis")
	t.Setenv("TEST_EVENTS_DB", "2")
	cfg = events.Config{}
	if err := cfg.Finalize(&events.Env{Provider: "TEST_EVENTS_PROVIDER", DB: "TEST_EVENTS_DB"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "redis" || cfg.Redis.DB != 2 || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("env: %+v", cfg)
	}

	bad := events.Config{Provider: "kafka"}
	if err := bad.Finalize(nil); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := events.Config{}
	cfg.Finalize(nil)

	bus, err := events.New(&cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := bus.(*events.Memory); !ok {
		t.Errorf("got %T, want *events.Memory", bus)
	}
}
