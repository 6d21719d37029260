package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/tagger/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a prompt repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "prompts"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) Instructions(ctx context.Context, stage Stage) (string, bool, error) {
	q := `SELECT ` + overrideColumns + ` FROM prompt_overrides WHERE stage = $1`

	o, err := repository.QueryOne(ctx, r.db, q, []any{stage}, scanOverride)
	if err == nil {
		return o.Instructions, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("load %s override: %w", stage, err)
	}

	text, err := Instructions(stage)
	return text, false, err
}

func (r *repo) Spec(ctx context.Context, stage Stage) (string, error) {
	return Spec(stage)
}

func (r *repo) List(ctx context.Context) ([]Override, error) {
	q := `SELECT ` + overrideColumns + ` FROM prompt_overrides ORDER BY stage`

	overrides, err := repository.QueryMany(ctx, r.db, q, nil, scanOverride)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	return overrides, nil
}

func (r *repo) Set(ctx context.Context, stage Stage, cmd SetCommand) (*Override, error) {
	text := strings.TrimSpace(cmd.Instructions)
	if text == "" {
		return nil, ErrEmpty
	}

	q := `
		INSERT INTO prompt_overrides (stage, instructions, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (stage) DO UPDATE
		SET instructions = EXCLUDED.instructions, updated_at = EXCLUDED.updated_at
		RETURNING ` + overrideColumns

	o, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Override, error) {
		return repository.QueryOne(ctx, tx, q, []any{stage, text}, scanOverride)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, nil)
	}

	r.logger.Info("instruction override set", "stage", stage)
	return &o, nil
}

func (r *repo) Reset(ctx context.Context, stage Stage) error {
	err := repository.ExecExpectOne(ctx, r.db, "DELETE FROM prompt_overrides WHERE stage = $1", stage)
	if err != nil {
		return repository.MapError(err, ErrNotFound, nil)
	}

	r.logger.Info("instruction override removed", "stage", stage)
	return nil
}
