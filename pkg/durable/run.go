package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Run is the handle a workflow body uses to journal steps, publish its stage,
// and wait for events.
type Run struct {
	engine *Engine
	inst   *Instance
	held   bool
	logger *slog.Logger
}

// ID returns the instance identifier.
func (r *Run) ID() string {
	return r.inst.ID
}

// Logger returns a logger scoped to the instance.
func (r *Run) Logger() *slog.Logger {
	return r.logger
}

// Params decodes the instance parameters into v.
func (r *Run) Params(v any) error {
	if err := json.Unmarshal(r.inst.Params, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

// SetStage publishes the externally visible stage name.
func (r *Run) SetStage(ctx context.Context, stage string) error {
	if r.inst.Stage == stage {
		return nil
	}
	r.inst.Stage = stage
	return r.update(ctx)
}

type waitOutcome struct {
	Event    *Event `json:"event,omitempty"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// WaitForEvent suspends the run until an event of kind is delivered or the
// timeout elapses, whichever happens first. name identifies the wait in the
// journal: its deadline is fixed on first entry and its outcome is replayed
// on later entries. Returns ErrEventTimeout when the deadline passes.
//
// The run's concurrency slot is released while waiting.
func (r *Run) WaitForEvent(ctx context.Context, name, kind string, timeout time.Duration) (Event, error) {
	key := "wait:" + name
	journal := r.engine.journal

	if raw, ok, err := journal.LoadStep(ctx, r.inst.ID, key); err != nil {
		return Event{}, fmt.Errorf("load wait %s: %w", name, err)
	} else if ok {
		return decodeOutcome(raw)
	}

	deadline, err := journal.WaitDeadline(ctx, r.inst.ID, name, time.Now().UTC().Add(timeout))
	if err != nil {
		return Event{}, fmt.Errorf("record wait deadline %s: %w", name, err)
	}

	sub, err := r.engine.bus.Subscribe(ctx, r.inst.ID)
	if err != nil {
		return Event{}, fmt.Errorf("subscribe %s: %w", name, err)
	}
	defer sub.Close()

	if err := r.setStatus(ctx, StatusWaiting); err != nil {
		return Event{}, err
	}
	r.release()

	r.logger.Info("waiting for event", "kind", kind, "deadline", deadline)

	// Consumed events are journaled as the outcome by ConsumeEvent, timeouts
	// here, both before the run competes for a slot again.
	outcome, err := r.await(ctx, sub.C(), key, kind, deadline)
	if err != nil {
		return Event{}, err
	}
	if outcome.TimedOut {
		raw, err := json.Marshal(outcome)
		if err != nil {
			return Event{}, fmt.Errorf("encode wait outcome: %w", err)
		}
		if err := journal.SaveStep(ctx, r.inst.ID, key, raw); err != nil {
			return Event{}, fmt.Errorf("save wait %s: %w", name, err)
		}
	}

	if err := r.acquire(ctx); err != nil {
		return Event{}, err
	}
	// The next journaled update carries the status, so a failure here only
	// delays when running becomes visible.
	if err := r.setStatus(ctx, StatusRunning); err != nil {
		r.logger.Warn("record running after wait failed", "error", err)
	}

	if outcome.TimedOut {
		r.logger.Info("wait timed out", "kind", kind)
		return Event{}, ErrEventTimeout
	}

	r.logger.Info("event consumed", "kind", kind)
	return *outcome.Event, nil
}

// await checks the journal for a buffered event on entry, on every bus
// wake-up, on every poll tick, and once more when the deadline fires.
func (r *Run) await(ctx context.Context, wake <-chan []byte, key, kind string, deadline time.Time) (*waitOutcome, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	poll := time.NewTicker(r.engine.cfg.PollIntervalDuration())
	defer poll.Stop()

	expired := false
	for {
		ev, err := r.engine.journal.ConsumeEvent(ctx, r.inst.ID, kind, key)
		if err != nil {
			return nil, fmt.Errorf("consume event: %w", err)
		}
		if ev != nil {
			return &waitOutcome{Event: ev}, nil
		}
		if expired || !time.Now().Before(deadline) {
			return &waitOutcome{TimedOut: true}, nil
		}

		select {
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		case <-poll.C:
		case <-timer.C:
			expired = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func eventOutcome(ev Event) (json.RawMessage, error) {
	raw, err := json.Marshal(waitOutcome{Event: &ev})
	if err != nil {
		return nil, fmt.Errorf("encode wait outcome: %w", err)
	}
	return raw, nil
}

func decodeOutcome(raw json.RawMessage) (Event, error) {
	var outcome waitOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return Event{}, fmt.Errorf("decode wait outcome: %w", err)
	}
	if outcome.TimedOut || outcome.Event == nil {
		return Event{}, ErrEventTimeout
	}
	return *outcome.Event, nil
}

func (r *Run) setStatus(ctx context.Context, status Status) error {
	r.inst.Status = status
	return r.update(ctx)
}

func (r *Run) update(ctx context.Context) error {
	r.inst.UpdatedAt = time.Now().UTC()
	if err := r.engine.journal.UpdateInstance(ctx, r.inst); err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	return nil
}

func (r *Run) acquire(ctx context.Context) error {
	if r.held {
		return nil
	}
	if err := r.engine.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	r.held = true
	return nil
}

func (r *Run) release() {
	if r.held {
		r.engine.sem.Release(1)
		r.held = false
	}
}
