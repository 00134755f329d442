package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// timestampLayout is fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Compile-time interface satisfaction check.
var _ driven.DraftStore = (*DraftRepo)(nil)

// DraftRepo is the SQLite implementation of the DraftStore port interface.
// Drafts are keyed by the provider's controller id rather than the per-run
// owner id, so they survive a restart.
type DraftRepo struct {
	db *DB
}

// NewDraftRepo creates a new DraftRepo.
func NewDraftRepo(db *DB) *DraftRepo {
	return &DraftRepo{db: db}
}

// Save inserts or replaces the draft for its controller and thread. A zero
// UpdatedAt is stamped with the current time.
func (r *DraftRepo) Save(ctx context.Context, d model.Draft) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}

	const query = `
		INSERT INTO drafts (controller_id, thread_id, resource, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(controller_id, thread_id) DO UPDATE SET
			resource = excluded.resource,
			body = excluded.body,
			updated_at = excluded.updated_at`

	_, err := r.db.Writer.ExecContext(ctx, query,
		d.ControllerID, d.ThreadID, d.Resource, d.Body, d.UpdatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("save draft %s/%s: %w", d.ControllerID, d.ThreadID, err)
	}
	return nil
}

// Get returns the draft for a thread, or nil, nil when there is none.
func (r *DraftRepo) Get(ctx context.Context, controllerID, threadID string) (*model.Draft, error) {
	const query = `
		SELECT controller_id, thread_id, resource, body, updated_at
		FROM drafts WHERE controller_id = ? AND thread_id = ?`

	d, err := scanDraft(r.db.Reader.QueryRowContext(ctx, query, controllerID, threadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft %s/%s: %w", controllerID, threadID, err)
	}
	return &d, nil
}

// Delete removes a thread's draft. Deleting a missing draft is not an error.
func (r *DraftRepo) Delete(ctx context.Context, controllerID, threadID string) error {
	const query = `DELETE FROM drafts WHERE controller_id = ? AND thread_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, controllerID, threadID); err != nil {
		return fmt.Errorf("delete draft %s/%s: %w", controllerID, threadID, err)
	}
	return nil
}

// ListByController returns every draft of a controller, most recent first.
func (r *DraftRepo) ListByController(ctx context.Context, controllerID string) ([]model.Draft, error) {
	const query = `
		SELECT controller_id, thread_id, resource, body, updated_at
		FROM drafts WHERE controller_id = ?
		ORDER BY updated_at DESC, thread_id`

	rows, err := r.db.Reader.QueryContext(ctx, query, controllerID)
	if err != nil {
		return nil, fmt.Errorf("list drafts for %s: %w", controllerID, err)
	}
	defer rows.Close()

	var drafts []model.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return drafts, nil
}

// PruneOlderThan deletes drafts last touched before cutoff and returns how
// many were removed.
func (r *DraftRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM drafts WHERE updated_at < ?`
	res, err := r.db.Writer.ExecContext(ctx, query, cutoff.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("prune drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune drafts rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (model.Draft, error) {
	var d model.Draft
	var updatedAt string
	if err := row.Scan(&d.ControllerID, &d.ThreadID, &d.Resource, &d.Body, &updatedAt); err != nil {
		return model.Draft{}, err
	}

	t, err := parseTimestamp(updatedAt)
	if err != nil {
		return model.Draft{}, fmt.Errorf("parse updated_at: %w", err)
	}
	d.UpdatedAt = t
	return d, nil
}

// parseTimestamp accepts our own RFC 3339 values as well as SQLite's
// CURRENT_TIMESTAMP format.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
