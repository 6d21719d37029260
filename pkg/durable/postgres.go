package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/tagger/pkg/repository"
)

// PostgresJournal persists journal state in the workflow_* tables created by
// cmd/migrate.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal creates a journal over db.
func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

const instanceColumns = `id, workflow, status, stage, params, output, error, created_at, updated_at`

func scanInstance(s repository.Scanner) (Instance, error) {
	var (
		inst   Instance
		params []byte
		output []byte
		errMsg sql.NullString
	)
	err := s.Scan(
		&inst.ID, &inst.Workflow, &inst.Status, &inst.Stage,
		&params, &output, &errMsg,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	inst.Params = params
	inst.Output = output
	inst.Error = errMsg.String
	return inst, err
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (p *PostgresJournal) CreateInstance(ctx context.Context, inst *Instance) error {
	q := `
		INSERT INTO workflow_instances (id, workflow, status, stage, params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`

	_, err := p.db.ExecContext(ctx, q,
		inst.ID, inst.Workflow, inst.Status, inst.Stage,
		jsonArg(inst.Params), inst.CreatedAt, inst.UpdatedAt,
	)
	return repository.MapError(err, nil, ErrExists)
}

func (p *PostgresJournal) UpdateInstance(ctx context.Context, inst *Instance) error {
	q := `
		UPDATE workflow_instances
		SET status = $2, stage = $3, output = $4::jsonb, error = NULLIF($5, ''), updated_at = $6
		WHERE id = $1`

	err := repository.ExecExpectOne(ctx, p.db, q,
		inst.ID, inst.Status, inst.Stage, jsonArg(inst.Output), inst.Error, inst.UpdatedAt,
	)
	return repository.MapError(err, ErrNotFound, nil)
}

func (p *PostgresJournal) FindInstance(ctx context.Context, id string) (*Instance, error) {
	q := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`

	inst, err := repository.QueryOne(ctx, p.db, q, []any{id}, scanInstance)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, nil)
	}
	return &inst, nil
}

func (p *PostgresJournal) PendingInstances(ctx context.Context, workflow string) ([]Instance, error) {
	q := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE workflow = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at`

	return repository.QueryMany(ctx, p.db, q,
		[]any{workflow, StatusComplete, StatusError}, scanInstance,
	)
}

func (p *PostgresJournal) LoadStep(ctx context.Context, id, name string) (json.RawMessage, bool, error) {
	q := `SELECT output FROM workflow_steps WHERE instance_id = $1 AND name = $2`

	var output []byte
	err := p.db.QueryRowContext(ctx, q, id, name).Scan(&output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return output, true, nil
}

func (p *PostgresJournal) SaveStep(ctx context.Context, id, name string, output json.RawMessage) error {
	q := `
		INSERT INTO workflow_steps (instance_id, name, output)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (instance_id, name) DO NOTHING`

	_, err := p.db.ExecContext(ctx, q, id, name, jsonArg(output))
	return err
}

// WaitDeadline relies on the no-op DO UPDATE so RETURNING yields the stored
// deadline when the row already exists.
func (p *PostgresJournal) WaitDeadline(ctx context.Context, id, name string, deadline time.Time) (time.Time, error) {
	q := `
		INSERT INTO workflow_waits (instance_id, name, deadline)
		VALUES ($1, $2, $3)
		ON CONFLICT (instance_id, name) DO UPDATE SET deadline = workflow_waits.deadline
		RETURNING deadline`

	var stored time.Time
	if err := p.db.QueryRowContext(ctx, q, id, name, deadline).Scan(&stored); err != nil {
		return time.Time{}, err
	}
	return stored, nil
}

func (p *PostgresJournal) AppendEvent(ctx context.Context, id string, ev Event) error {
	q := `
		INSERT INTO workflow_events (instance_id, kind, payload, received_at)
		VALUES ($1, $2, $3::jsonb, $4)`

	_, err := p.db.ExecContext(ctx, q, id, ev.Kind, jsonArg(ev.Payload), ev.ReceivedAt)
	if repository.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

// ConsumeEvent marks the event consumed and inserts the wait outcome in one
// transaction.
func (p *PostgresJournal) ConsumeEvent(ctx context.Context, id, kind, step string) (*Event, error) {
	q := `
		UPDATE workflow_events SET consumed_at = now()
		WHERE id = (
			SELECT id FROM workflow_events
			WHERE instance_id = $1 AND kind = $2 AND consumed_at IS NULL
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING kind, payload, received_at`

	save := `
		INSERT INTO workflow_steps (instance_id, name, output)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (instance_id, name) DO NOTHING`

	ev, err := repository.WithTx(ctx, p.db, func(tx *sql.Tx) (*Event, error) {
		ev, err := repository.QueryOne(ctx, tx, q, []any{id, kind}, scanEvent)
		if err != nil {
			return nil, err
		}

		outcome, err := eventOutcome(ev)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, save, id, step, jsonArg(outcome)); err != nil {
			return nil, err
		}
		return &ev, nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume %s event: %w", kind, err)
	}
	return ev, nil
}

func scanEvent(s repository.Scanner) (Event, error) {
	var (
		ev      Event
		payload []byte
	)
	err := s.Scan(&ev.Kind, &payload, &ev.ReceivedAt)
	ev.Payload = payload
	return ev, err
}
