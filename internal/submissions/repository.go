package submissions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/JaimeStill/tagger/pkg/repository"
	"github.com/JaimeStill/tagger/pkg/storage"
)

type repo struct {
	db      repository.DBTX
	storage storage.System
	logger  *slog.Logger
}

// New creates a submission repository implementing the System interface.
func New(db repository.DBTX, store storage.System, logger *slog.Logger) System {
	return &repo{
		db:      db,
		storage: store,
		logger:  logger.With("system", "submissions"),
	}
}

func (r *repo) Handler(workflows Workflows, maxUploadSize int64) *Handler {
	return NewHandler(r, workflows, r.logger, maxUploadSize)
}

func (r *repo) StoreImage(ctx context.Context, cmd StoreCommand) (*Params, error) {
	key := buildImageKey(cmd.InstanceID, sanitizeFilename(cmd.FileName))

	if err := r.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload image blob: %w", err)
	}

	r.logger.Info("image stored", "instance_id", cmd.InstanceID, "key", key, "size", len(cmd.Data))

	return &Params{
		InstanceID:  cmd.InstanceID,
		ImageKey:    key,
		FileName:    cmd.FileName,
		ContentType: cmd.ContentType,
		SizeBytes:   int64(len(cmd.Data)),
		Width:       cmd.Width,
		Height:      cmd.Height,
	}, nil
}

func (r *repo) DeleteImage(ctx context.Context, key string) error {
	if err := r.storage.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete image blob: %w", err)
	}
	return nil
}

func (r *repo) Image(ctx context.Context, key string) ([]byte, error) {
	rc, err := r.storage.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download image %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", key, err)
	}
	return data, nil
}

func (r *repo) Insert(ctx context.Context, sub Submission) error {
	q := `
		INSERT INTO submissions (instance_id, image_key, file_name, content_type, size_bytes, width, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instance_id) DO NOTHING`

	n, err := repository.Exec(ctx, r.db, q,
		sub.InstanceID,
		sub.ImageKey,
		sub.FileName,
		sub.ContentType,
		sub.SizeBytes,
		sub.Width,
		sub.Height,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	if n > 0 {
		r.logger.Info("submission persisted", "instance_id", sub.InstanceID)
	}
	return nil
}

func (r *repo) Find(ctx context.Context, instanceID string) (*Submission, error) {
	q := `SELECT ` + columns + ` FROM submissions WHERE instance_id = $1`

	sub, err := repository.QueryOne(ctx, r.db, q, []any{instanceID}, scanSubmission)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, nil)
	}
	return &sub, nil
}

func (r *repo) UpdateTags(ctx context.Context, instanceID, tags string) (string, error) {
	return r.setOnce(ctx, "tags", instanceID, tags)
}

func (r *repo) UpdateAltText(ctx context.Context, instanceID, altText string) (string, error) {
	return r.setOnce(ctx, "alt_text", instanceID, altText)
}

func (r *repo) Tags(ctx context.Context, instanceID string) (string, error) {
	return r.text(ctx, "tags", instanceID)
}

func (r *repo) AltText(ctx context.Context, instanceID string) (string, error) {
	return r.text(ctx, "alt_text", instanceID)
}

// setOnce writes column only when it is still NULL. column is always one of
// the fixed derived-field names, never caller input.
func (r *repo) setOnce(ctx context.Context, column, instanceID, value string) (string, error) {
	q := fmt.Sprintf(`
		UPDATE submissions
		SET %[1]s = COALESCE(%[1]s, $2), updated_at = now()
		WHERE instance_id = $1
		RETURNING %[1]s`, column)

	stored, err := repository.QueryOne(ctx, r.db, q, []any{instanceID, value}, scanText)
	if err != nil {
		return "", repository.MapError(err, ErrNotFound, nil)
	}

	r.logger.Info("derived field persisted", "instance_id", instanceID, "field", column)
	return stored, nil
}

func (r *repo) text(ctx context.Context, column, instanceID string) (string, error) {
	q := fmt.Sprintf(`SELECT %s FROM submissions WHERE instance_id = $1`, column)

	text, err := repository.QueryOne(ctx, r.db, q, []any{instanceID}, scanText)
	if err != nil {
		return "", repository.MapError(err, ErrNotFound, nil)
	}
	return text, nil
}

func buildImageKey(instanceID, filename string) string {
	return fmt.Sprintf("images/%s/%s", instanceID, filename)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "/" || name == "" {
		name = "image"
	}
	return url.PathEscape(name)
}

