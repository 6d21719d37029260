package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JaimeStill/tagger/pkg/events"
	"github.com/JaimeStill/tagger/pkg/lifecycle"
)

// Func is a workflow body. It must be deterministic with respect to its
// journaled steps: side effects belong inside Do.
type Func func(ctx context.Context, run *Run) (any, error)

// Engine executes instances of one workflow.
type Engine struct {
	name    string
	fn      Func
	journal Journal
	bus     events.Bus
	cfg     Config
	logger  *slog.Logger
	sem     *semaphore.Weighted

	mu      sync.Mutex
	ctx     context.Context
	active  map[string]struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates an engine for the named workflow. cfg must be finalized.
func New(name string, fn Func, journal Journal, bus events.Bus, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		name:    name,
		fn:      fn,
		journal: journal,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With("system", "durable", "workflow", name),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		active:  make(map[string]struct{}),
	}
}

// Name returns the workflow name.
func (e *Engine) Name() string {
	return e.name
}

// Start binds the engine to the coordinator context, resumes pending
// instances at startup, and waits for active runs on shutdown. Runs
// interrupted by shutdown keep their non-terminal status.
func (e *Engine) Start(lc *lifecycle.Coordinator) error {
	e.mu.Lock()
	e.ctx = lc.Context()
	e.mu.Unlock()

	e.logger.Info("starting workflow engine", "max_concurrent", e.cfg.MaxConcurrent)

	lc.OnStartup(func() {
		pending, err := e.journal.PendingInstances(lc.Context(), e.name)
		if err != nil {
			e.logger.Error("load pending instances failed", "error", err)
			return
		}

		for i := range pending {
			e.launch(&pending[i])
		}

		if len(pending) > 0 {
			e.logger.Info("resumed pending instances", "count", len(pending))
		}
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()

		e.wg.Wait()
		e.logger.Info("workflow engine stopped")
	})

	return nil
}

// Create journals a queued instance bound to params and begins executing it.
func (e *Engine) Create(ctx context.Context, id string, params any) (*Instance, error) {
	e.mu.Lock()
	started := e.ctx != nil
	e.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	now := time.Now().UTC()
	inst := &Instance{
		ID:        id,
		Workflow:  e.name,
		Status:    StatusQueued,
		Params:    raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.journal.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}

	snapshot := *inst

	e.logger.Info("instance created", "id", id)
	e.launch(inst)

	return &snapshot, nil
}

// Status returns the current journaled state of id.
func (e *Engine) Status(ctx context.Context, id string) (*Instance, error) {
	inst, err := e.journal.FindInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Workflow != e.name {
		return nil, ErrNotFound
	}
	return inst, nil
}

// SendEvent buffers an event for id and wakes any run waiting on it.
// Events for terminal instances are rejected with ErrFinished.
func (e *Engine) SendEvent(ctx context.Context, id, kind string, payload any) error {
	inst, err := e.Status(ctx, id)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return ErrFinished
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	ev := Event{
		Kind:       kind,
		Payload:    raw,
		ReceivedAt: time.Now().UTC(),
	}
	if err := e.journal.AppendEvent(ctx, id, ev); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if err := e.bus.Publish(ctx, id, []byte(kind)); err != nil {
		e.logger.Warn("event wake-up publish failed", "id", id, "kind", kind, "error", err)
	}

	e.logger.Info("event received", "id", id, "kind", kind)
	return nil
}

func (e *Engine) launch(inst *Instance) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.ctx.Err() != nil {
		return
	}
	if _, running := e.active[inst.ID]; running {
		return
	}
	e.active[inst.ID] = struct{}{}

	ctx := e.ctx
	e.wg.Go(func() {
		defer func() {
			e.mu.Lock()
			delete(e.active, inst.ID)
			e.mu.Unlock()
		}()
		e.execute(ctx, inst)
	})
}

func (e *Engine) execute(ctx context.Context, inst *Instance) {
	logger := e.logger.With("id", inst.ID)

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return
	}

	run := &Run{engine: e, inst: inst, held: true, logger: logger}
	defer run.release()

	if err := run.setStatus(ctx, StatusRunning); err != nil {
		logger.Error("mark running failed", "error", err)
		return
	}

	output, err := e.fn(ctx, run)

	if ctx.Err() != nil {
		logger.Info("run suspended by shutdown", "stage", inst.Stage)
		return
	}

	if err != nil {
		inst.Error = err.Error()
		if uerr := run.setStatus(ctx, StatusError); uerr != nil {
			logger.Error("record failure failed", "error", uerr)
		}
		logger.Error("instance failed", "stage", inst.Stage, "error", err)
		return
	}

	raw, err := json.Marshal(output)
	if err != nil {
		inst.Error = fmt.Sprintf("encode output: %v", err)
		if uerr := run.setStatus(ctx, StatusError); uerr != nil {
			logger.Error("record failure failed", "error", uerr)
		}
		logger.Error("instance failed", "stage", inst.Stage, "error", inst.Error)
		return
	}

	inst.Output = raw
	if err := run.setStatus(ctx, StatusComplete); err != nil {
		logger.Error("mark complete failed", "error", err)
		return
	}

	logger.Info("instance complete", "stage", inst.Stage)
}

func (e *Engine) backoff(attempt int) time.Duration {
	delay := e.cfg.RetryDelayDuration()
	ceiling := e.cfg.MaxRetryDelayDuration()
	for range attempt {
		if ceiling > 0 && delay >= ceiling/2 {
			return ceiling
		}
		delay *= 2
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
