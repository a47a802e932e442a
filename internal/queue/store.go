package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var openPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// Open connects to the queue database at dbPath, creating the schema on first
// use.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range openPragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewVideo enqueues a source video awaiting analysis. An empty title is
// derived from the file name.
func (s *Store) NewVideo(ctx context.Context, sourcePath, videoTitle string) (*Item, error) {
	if videoTitle == "" {
		videoTitle = inferTitleFromPath(sourcePath)
	}
	now := timestampNow()

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO queue_items (
            source_path, video_title, status, created_at, updated_at,
            progress_stage, progress_percent, progress_message
        ) VALUES (?, ?, ?, ?, ?, NULL, 0.0, NULL)`,
		sourcePath,
		videoTitle,
		StatusPending,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item, or nil when no item has that identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	return s.queryOne(ctx, "get item", `WHERE id = ?`, id)
}

// FindBySourcePath returns the oldest item matching a source path.
func (s *Store) FindBySourcePath(ctx context.Context, sourcePath string) (*Item, error) {
	return s.queryOne(ctx, "find by source path", `WHERE source_path = ? ORDER BY id LIMIT 1`, sourcePath)
}

// NextForStatuses returns the oldest item matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	clause, args := statusClause(statuses)
	return s.queryOne(ctx, "next for status", `WHERE `+clause+` ORDER BY created_at LIMIT 1`, args...)
}

func (s *Store) queryOne(ctx context.Context, op, suffix string, args ...any) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items `+suffix, args...)
	item, err := scanItem(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return item, nil
}

// List returns items ordered by creation time, optionally filtered to a
// status set.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	var args []any
	if len(statuses) > 0 {
		var clause string
		clause, args = statusClause(statuses)
		query += ` WHERE ` + clause
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Update persists every mutable column of an existing queue item and bumps
// its updated_at timestamp.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items
         SET source_path = ?, video_title = ?, status = ?, duration_seconds = ?,
             transcript_path = ?, vocal_clip_path = ?, keyframe_path = ?, video_theme = ?,
             ad_script = ?, insertion_json = ?, ad_video_path = ?, final_file = ?,
             error_message = ?, updated_at = ?, progress_stage = ?, progress_percent = ?,
             progress_message = ?, last_heartbeat = ?, needs_review = ?, review_reason = ?
         WHERE id = ?`,
		nullableString(item.SourcePath),
		nullableString(item.VideoTitle),
		item.Status,
		item.DurationSeconds,
		nullableString(item.TranscriptPath),
		nullableString(item.VocalClipPath),
		nullableString(item.KeyframePath),
		nullableString(item.VideoTheme),
		nullableString(item.AdScript),
		nullableString(item.InsertionJSON),
		nullableString(item.AdVideoPath),
		nullableString(item.FinalFile),
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		nullableTime(item.LastHeartbeat),
		boolToInt(item.NeedsReview),
		nullableString(item.ReviewReason),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Remove deletes a queue item. Returns false when no row matched.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	affected, err := s.execRows(ctx, "remove item", `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Clear removes all items, or only completed ones when completedOnly is set.
func (s *Store) Clear(ctx context.Context, completedOnly bool) (int64, error) {
	if completedOnly {
		return s.execRows(ctx, "clear queue", `DELETE FROM queue_items WHERE status = ?`, StatusCompleted)
	}
	return s.execRows(ctx, "clear queue", `DELETE FROM queue_items`)
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := timestampNow()
	_, err := s.execRows(ctx, "update heartbeat",
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// ReclaimStaleProcessing rolls items whose heartbeat predates cutoff back to
// the status the stage resumes from.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.rollbackProcessing(ctx, "reclaim stale items", "Reclaimed from stale processing",
		` AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
}

// ResetStuckProcessing rolls every in-flight item back to its resume status.
// Used at daemon startup after an unclean shutdown.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	return s.rollbackProcessing(ctx, "reset stuck items", "Reset from stuck processing", "")
}

func (s *Store) rollbackProcessing(ctx context.Context, op, note, extraWhere string, extraArgs ...any) (int64, error) {
	now := timestampNow()
	var total int64
	for _, transition := range stageRollbackTransitions {
		args := append([]any{transition.to, note, now, transition.from}, extraArgs...)
		affected, err := s.execRows(ctx, op,
			`UPDATE queue_items
            SET status = ?, progress_stage = ?, progress_percent = 0,
                progress_message = NULL, last_heartbeat = NULL, updated_at = ?
            WHERE status = ?`+extraWhere,
			args...,
		)
		if err != nil {
			return total, err
		}
		total += affected
	}
	return total, nil
}

// RetryFailed moves failed or review items back to pending. With no ids it
// retries every eligible item.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE queue_items
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, needs_review = 0,
            review_reason = NULL, updated_at = ?
        WHERE status IN (?, ?)`
	args := []any{StatusPending, timestampNow(), StatusFailed, StatusReview}

	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	return s.execRows(ctx, "retry failed items", query, args...)
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates the status counts into the buckets diagnostic output
// cares about.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for status, count := range stats {
		health.Total += count
		switch {
		case status == StatusPending:
			health.Pending += count
		case status == StatusFailed:
			health.Failed += count
		case status == StatusReview:
			health.Review += count
		case status == StatusCompleted:
			health.Completed += count
		case IsProcessingStatus(status):
			health.Processing += count
		}
	}
	return health, nil
}

func (s *Store) execRows(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return affected, nil
}

func statusClause(statuses []Status) (string, []any) {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return `status IN (` + makePlaceholders(len(statuses)) + `)`, args
}

func timestampNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func inferTitleFromPath(sourcePath string) string {
	base := filepath.Base(sourcePath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("_", " ", ".", " ").Replace(name)
	return strings.TrimSpace(name)
}
