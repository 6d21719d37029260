package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn as the named step of run. A step that completed in an
// earlier execution returns its journaled output without calling fn. Failed
// attempts are retried with exponential backoff up to the configured limit.
func Do[T any](ctx context.Context, run *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	journal := run.engine.journal

	raw, ok, err := journal.LoadStep(ctx, run.inst.ID, name)
	if err != nil {
		return zero, fmt.Errorf("load step %s: %w", name, err)
	}
	if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err != nil {
			return zero, fmt.Errorf("decode step %s: %w", name, err)
		}
		run.logger.Debug("step replayed", "step", name)
		return cached, nil
	}

	retries := run.engine.cfg.StepRetries
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := run.engine.backoff(attempt - 1)
			run.logger.Warn("retrying step", "step", name, "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			encoded, err := json.Marshal(result)
			if err != nil {
				return zero, fmt.Errorf("encode step %s: %w", name, err)
			}
			if err := journal.SaveStep(ctx, run.inst.ID, name, encoded); err != nil {
				return zero, fmt.Errorf("save step %s: %w", name, err)
			}
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, fmt.Errorf("step %s: %w", name, perm.err)
		}

		lastErr = err
	}

	return zero, fmt.Errorf("step %s failed after %d attempts: %w", name, retries+1, lastErr)
}
