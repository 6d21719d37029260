package durable_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/tagger/pkg/durable"
	"github.com/JaimeStill/tagger/pkg/events"
	"github.com/JaimeStill/tagger/pkg/lifecycle"
)

type approval struct {
	Approved bool `json:"approved"`
}

type params struct {
	Name string `json:"name"`
}

type harness struct {
	engine *durable.Engine
	bus    *events.Memory
	lc     *lifecycle.Coordinator
}

func testConfig(t *testing.T) durable.Config {
	t.Helper()
	cfg := durable.Config{
		StepRetries:  2,
		RetryDelay:   "1ms",
		PollInterval: "20ms",
	}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func start(t *testing.T, fn durable.Func, journal durable.Journal) *harness {
	t.Helper()
	return startWith(t, fn, journal, testConfig(t))
}

func startWith(t *testing.T, fn durable.Func, journal durable.Journal, cfg durable.Config) *harness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	bus := events.NewMemory("test", logger)
	engine := durable.New("test", fn, journal, bus, cfg, logger)

	lc := lifecycle.New()
	if err := bus.Start(lc); err != nil {
		t.Fatal(err)
	}
	if err := engine.Start(lc); err != nil {
		t.Fatal(err)
	}
	lc.WaitForStartup()

	h := &harness{engine: engine, bus: bus, lc: lc}
	t.Cleanup(func() { h.stop(t) })
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	if err := h.lc.Shutdown(2 * time.Second); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func waitFor(t *testing.T, h *harness, id string, cond func(*durable.Instance) bool) *durable.Instance {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		inst, err := h.engine.Status(context.Background(), id)
		if err == nil && cond(inst) {
			return inst
		}
		time.Sleep(5 * time.Millisecond)
	}
	inst, _ := h.engine.Status(context.Background(), id)
	t.Fatalf("condition not met for %s: %+v", id, inst)
	return nil
}

func terminal(inst *durable.Instance) bool { return inst.Status.Terminal() }

func gated(timeout time.Duration) durable.Func {
	return func(ctx context.Context, run *durable.Run) (any, error) {
		var p params
		if err := run.Params(&p); err != nil {
			return nil, err
		}

		if err := run.SetStage(ctx, "awaiting"); err != nil {
			return nil, err
		}

		ev, err := run.WaitForEvent(ctx, "gate", "approval", timeout)
		if errors.Is(err, durable.ErrEventTimeout) {
			run.SetStage(ctx, "skipped")
			return map[string]string{"result": "timeout"}, nil
		}
		if err != nil {
			return nil, err
		}

		var a approval
		if err := ev.Decode(&a); err != nil {
			return nil, err
		}
		if !a.Approved {
			run.SetStage(ctx, "skipped")
			return map[string]string{"result": "denied"}, nil
		}

		out, err := durable.Do(ctx, run, "greet", func(ctx context.Context) (string, error) {
			return "hello " + p.Name, nil
		})
		if err != nil {
			return nil, err
		}
		run.SetStage(ctx, "finished")
		return map[string]string{"result": out}, nil
	}
}

func TestApprovedEventCompletesInstance(t *testing.T) {
	h := start(t, gated(time.Minute), durable.NewMemoryJournal())
	ctx := context.Background()

	if _, err := h.engine.Create(ctx, "a1", params{Name: "tagger"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, h, "a1", func(i *durable.Instance) bool { return i.Status == durable.StatusWaiting })

	if err := h.engine.SendEvent(ctx, "a1", "approval", approval{Approved: true}); err != nil {
		t.Fatal(err)
	}

	inst := waitFor(t, h, "a1", terminal)
	if inst.Status != durable.StatusComplete {
		t.Fatalf("status: got %s, want complete (error %q)", inst.Status, inst.Error)
	}
	if inst.Stage != "finished" {
		t.Errorf("stage: got %q, want finished", inst.Stage)
	}
	if string(inst.Output) != `{"result":"hello tagger"}` {
		t.Errorf("output: got %s", inst.Output)
	}
}

func TestDeniedEventSkips(t *testing.T) {
	h := start(t, gated(time.Minute), durable.NewMemoryJournal())
	ctx := context.Background()

	h.engine.Create(ctx, "d1", params{})
	waitFor(t, h, "d1", func(i *durable.Instance) bool { return i.Status == durable.StatusWaiting })
	h.engine.SendEvent(ctx, "d1", "approval", approval{Approved: false})

	inst := waitFor(t, h, "d1", terminal)
	if string(inst.Output) != `{"result":"denied"}` || inst.Stage != "skipped" {
		t.Errorf("got stage %q output %s", inst.Stage, inst.Output)
	}
}

func TestWaitTimeout(t *testing.T) {
	h := start(t, gated(30*time.Millisecond), durable.NewMemoryJournal())

	h.engine.Create(context.Background(), "t1", params{})

	inst := waitFor(t, h, "t1", terminal)
	if string(inst.Output) != `{"result":"timeout"}` {
		t.Errorf("output: got %s", inst.Output)
	}
}

func TestEventSentBeforeWaitIsBuffered(t *testing.T) {
	release := make(chan struct{})
	inner := gated(time.Minute)
	fn := func(ctx context.Context, run *durable.Run) (any, error) {
		<-release
		return inner(ctx, run)
	}

	h := start(t, fn, durable.NewMemoryJournal())
	ctx := context.Background()

	h.engine.Create(ctx, "b1", params{Name: "early"})
	if err := h.engine.SendEvent(ctx, "b1", "approval", approval{Approved: true}); err != nil {
		t.Fatal(err)
	}
	close(release)

	inst := waitFor(t, h, "b1", terminal)
	if string(inst.Output) != `{"result":"hello early"}` {
		t.Errorf("output: got %s", inst.Output)
	}
}

func TestEventKindMismatchIsIgnored(t *testing.T) {
	h := start(t, gated(150*time.Millisecond), durable.NewMemoryJournal())
	ctx := context.Background()

	h.engine.Create(ctx, "k1", params{})
	waitFor(t, h, "k1", func(i *durable.Instance) bool { return i.Status == durable.StatusWaiting })
	h.engine.SendEvent(ctx, "k1", "other", approval{Approved: true})

	inst := waitFor(t, h, "k1", terminal)
	if string(inst.Output) != `{"result":"timeout"}` {
		t.Errorf("output: got %s", inst.Output)
	}
}

func TestSendEventErrors(t *testing.T) {
	fn := func(ctx context.Context, run *durable.Run) (any, error) { return "done", nil }
	h := start(t, fn, durable.NewMemoryJournal())
	ctx := context.Background()

	if err := h.engine.SendEvent(ctx, "missing", "approval", nil); !errors.Is(err, durable.ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}

	h.engine.Create(ctx, "f1", nil)
	waitFor(t, h, "f1", terminal)

	if err := h.engine.SendEvent(ctx, "f1", "approval", nil); !errors.Is(err, durable.ErrFinished) {
		t.Errorf("finished: got %v, want ErrFinished", err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	h := start(t, gated(time.Minute), durable.NewMemoryJournal())
	ctx := context.Background()

	if _, err := h.engine.Create(ctx, "dup", params{}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Create(ctx, "dup", params{}); !errors.Is(err, durable.ErrExists) {
		t.Errorf("got %v, want ErrExists", err)
	}
}

func TestCreateBeforeStart(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	engine := durable.New("test", gated(time.Minute), durable.NewMemoryJournal(),
		events.NewMemory("test", logger), testConfig(t), logger)

	if _, err := engine.Create(context.Background(), "x", nil); !errors.Is(err, durable.ErrNotStarted) {
		t.Errorf("got %v, want ErrNotStarted", err)
	}
}

func TestStepRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context, run *durable.Run) (any, error) {
		return durable.Do(ctx, run, "flaky", func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", errors.New("upstream unavailable")
		})
	}

	h := start(t, fn, durable.NewMemoryJournal())
	h.engine.Create(context.Background(), "r1", nil)

	inst := waitFor(t, h, "r1", terminal)
	if inst.Status != durable.StatusError {
		t.Fatalf("status: got %s, want error", inst.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts: got %d, want 3", got)
	}
	if inst.Error == "" {
		t.Error("error message not recorded")
	}
}

func TestStepRecoversAfterRetry(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context, run *durable.Run) (any, error) {
		return durable.Do(ctx, run, "flaky", func(ctx context.Context) (int, error) {
			if calls.Add(1) < 2 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
	}

	h := start(t, fn, durable.NewMemoryJournal())
	h.engine.Create(context.Background(), "r2", nil)

	inst := waitFor(t, h, "r2", terminal)
	if inst.Status != durable.StatusComplete || string(inst.Output) != "42" {
		t.Errorf("got %s output %s", inst.Status, inst.Output)
	}
}

func TestPermanentErrorSkipsRetry(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context, run *durable.Run) (any, error) {
		return durable.Do(ctx, run, "bad-input", func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", durable.Permanent(errors.New("invalid image"))
		})
	}

	h := start(t, fn, durable.NewMemoryJournal())
	h.engine.Create(context.Background(), "p1", nil)

	waitFor(t, h, "p1", terminal)
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts: got %d, want 1", got)
	}
}

func TestShutdownResumesWithoutRepeatingSteps(t *testing.T) {
	journal := durable.NewMemoryJournal()

	var sideEffects atomic.Int32
	fn := func(ctx context.Context, run *durable.Run) (any, error) {
		n, err := durable.Do(ctx, run, "persist", func(ctx context.Context) (int32, error) {
			return sideEffects.Add(1), nil
		})
		if err != nil {
			return nil, err
		}
		if _, err := run.WaitForEvent(ctx, "gate", "approval", time.Minute); err != nil {
			return nil, err
		}
		return n, nil
	}

	first := start(t, fn, journal)
	first.engine.Create(context.Background(), "s1", nil)
	waitFor(t, first, "s1", func(i *durable.Instance) bool { return i.Status == durable.StatusWaiting })
	first.stop(t)

	inst, err := journal.FindInstance(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Status.Terminal() {
		t.Fatalf("shutdown should not finish the instance, got %s", inst.Status)
	}

	second := start(t, fn, journal)
	waitFor(t, second, "s1", func(i *durable.Instance) bool { return i.Status == durable.StatusWaiting })
	if err := second.engine.SendEvent(context.Background(), "s1", "approval", nil); err != nil {
		t.Fatal(err)
	}

	inst = waitFor(t, second, "s1", terminal)
	if inst.Status != durable.StatusComplete {
		t.Fatalf("status: got %s (%s)", inst.Status, inst.Error)
	}
	if got := sideEffects.Load(); got != 1 {
		t.Errorf("persist step ran %d times, want 1", got)
	}
}

// flakyJournal fails the next UpdateInstance once armed.
type flakyJournal struct {
	*durable.MemoryJournal
	failNext atomic.Bool
}

func (f *flakyJournal) UpdateInstance(ctx context.Context, inst *durable.Instance) error {
	if f.failNext.CompareAndSwap(true, false) {
		return errors.New("journal unavailable")
	}
	return f.MemoryJournal.UpdateInstance(ctx, inst)
}

func TestApprovalSurvivesShutdownWhileQueuedForSlot(t *testing.T) {
	journal := durable.NewMemoryJournal()
	cfg := testConfig(t)
	cfg.MaxConcurrent = 1

	var blocking atomic.Bool
	blocking.Store(true)
	holding := make(chan struct{}, 1)

	gate := gated(300 * time.Millisecond)
	fn := func(ctx context.Context, run *durable.Run) (any, error) {
		if run.ID() != "busy" {
			return gate(ctx, run)
		}
		return durable.Do(ctx, run, "hold", func(ctx context.Context) (bool, error) {
			if !blocking.Load() {
				return true, nil
			}
			holding <- struct{}{}
			<-ctx.Done()
			return false, ctx.Err()
		})
	}

	ctx := context.Background()
	waiting := func(i *durable.Instance) bool { return i.Status == durable.StatusWaiting }

	first := startWith(t, fn, journal, cfg)
	first.engine.Create(ctx, "g", params{Name: "gate"})
	waitFor(t, first, "g", waiting)

	first.engine.Create(ctx, "busy", nil)
	<-holding

	if err := first.engine.SendEvent(ctx, "g", "approval", approval{Approved: true}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := journal.LoadStep(ctx, "g", "wait:gate"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("approval was never consumed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	first.stop(t)

	blocking.Store(false)
	second := startWith(t, fn, journal, cfg)

	inst := waitFor(t, second, "g", terminal)
	if inst.Status != durable.StatusComplete {
		t.Fatalf("status: got %s (%s)", inst.Status, inst.Error)
	}
	if got := string(inst.Output); got != `{"result":"hello gate"}` {
		t.Errorf("output after approval across restart: got %s", got)
	}
}

func TestApprovalKeptWhenStatusUpdateFails(t *testing.T) {
	journal := &flakyJournal{MemoryJournal: durable.NewMemoryJournal()}
	h := start(t, gated(time.Minute), journal)

	ctx := context.Background()
	h.engine.Create(ctx, "f1", params{Name: "flaky"})
	waitFor(t, h, "f1", func(i *durable.Instance) bool { return i.Status == durable.StatusWaiting })

	journal.failNext.Store(true)
	if err := h.engine.SendEvent(ctx, "f1", "approval", approval{Approved: true}); err != nil {
		t.Fatal(err)
	}

	inst := waitFor(t, h, "f1", terminal)
	if inst.Status != durable.StatusComplete {
		t.Fatalf("status: got %s (%s)", inst.Status, inst.Error)
	}
	if got := string(inst.Output); got != `{"result":"hello flaky"}` {
		t.Errorf("output: got %s", got)
	}
	if journal.failNext.Load() {
		t.Error("the armed update failure was never exercised")
	}
}

func TestUnencodableOutputFailsInstance(t *testing.T) {
	fn := func(ctx context.Context, run *durable.Run) (any, error) {
		return func() {}, nil
	}

	h := start(t, fn, durable.NewMemoryJournal())
	h.engine.Create(context.Background(), "u1", nil)

	inst := waitFor(t, h, "u1", terminal)
	if inst.Status != durable.StatusError {
		t.Fatalf("status: got %s, want error", inst.Status)
	}
	if !strings.Contains(inst.Error, "encode output") {
		t.Errorf("error: got %q", inst.Error)
	}
}

func TestConcurrencyLimitReleasedWhileWaiting(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrent = 1

	logger := slog.New(slog.DiscardHandler)
	bus := events.NewMemory("test", logger)
	engine := durable.New("test", gated(time.Minute), durable.NewMemoryJournal(), bus, cfg, logger)

	lc := lifecycle.New()
	bus.Start(lc)
	engine.Start(lc)
	lc.WaitForStartup()
	h := &harness{engine: engine, bus: bus, lc: lc}
	t.Cleanup(func() { h.stop(t) })

	ctx := context.Background()
	engine.Create(ctx, "c1", params{})
	engine.Create(ctx, "c2", params{})

	waiting := func(i *durable.Instance) bool { return i.Status == durable.StatusWaiting }
	waitFor(t, h, "c1", waiting)
	waitFor(t, h, "c2", waiting)
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{durable.ErrNotFound, 404},
		{durable.ErrExists, 409},
		{durable.ErrFinished, 400},
		{errors.New("x"), 500},
	}
	for _, tt := range tests {
		if got := durable.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("%v: got %d, want %d", tt.err, got, tt.want)
		}
	}
}
