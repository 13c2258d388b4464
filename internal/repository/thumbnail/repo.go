package thumbnail

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

var ErrThumbnailNotFound = errors.New("thumbnail not found")

// Repository stores render jobs in PostgreSQL.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a pending job.
func (r *Repository) Create(ctx context.Context, t model.Thumbnail) error {
	query := `
		INSERT INTO thumbnails (id, source, operations, format, output, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	ops, err := json.Marshal(t.Operations)
	if err != nil {
		return fmt.Errorf("create: failed to marshal operations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, t.ID, t.Source, ops, t.Format, t.Output, t.Status)
	if err != nil {
		return fmt.Errorf("create: failed to save thumbnail: %w", err)
	}

	return nil
}

// Get retrieves a job by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.Thumbnail, error) {
	query := `
		SELECT source, operations, format, output, cache_key, cache_file, object_key,
		       status, error, created_at, updated_at
		FROM thumbnails
		WHERE id = $1
	`

	var t model.Thumbnail
	var ops []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.Source, &ops, &t.Format, &t.Output, &t.CacheKey, &t.CacheFile, &t.ObjectKey,
		&t.Status, &t.Error, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Thumbnail{}, ErrThumbnailNotFound
		}

		return model.Thumbnail{}, fmt.Errorf("get: failed to get thumbnail: %w", err)
	}

	if err := json.Unmarshal(ops, &t.Operations); err != nil {
		return model.Thumbnail{}, fmt.Errorf("get: failed to unmarshal operations: %w", err)
	}

	t.ID = id

	return t, nil
}

// MarkProcessed stores the result of a successful render.
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID, res model.Result) error {
	query := `
		UPDATE thumbnails
		SET status = $1, cache_key = $2, cache_file = $3, output = $4, object_key = $5,
		    error = '', updated_at = now()
		WHERE id = $6
	`

	return r.update(ctx, "mark processed", query,
		model.StatusProcessed, res.CacheKey, res.CacheFile, res.Output, res.ObjectKey, id)
}

// MarkFailed records why a render failed.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE thumbnails
		SET status = $1, error = $2, updated_at = now()
		WHERE id = $3
	`

	return r.update(ctx, "mark failed", query, model.StatusFailed, reason, id)
}

func (r *Repository) update(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to update thumbnail: %w", op, err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrThumbnailNotFound
	}

	return nil
}
