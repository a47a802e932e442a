package queue

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const itemColumns = "id, source_path, video_title, status, duration_seconds, transcript_path, vocal_clip_path, keyframe_path, video_theme, ad_script, insertion_json, ad_video_path, final_file, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, last_heartbeat, needs_review, review_reason"

// itemRow mirrors itemColumns with nullable scan targets. Field order must
// match the column list.
type itemRow struct {
	id              int64
	sourcePath      sql.NullString
	videoTitle      sql.NullString
	status          string
	durationSeconds sql.NullFloat64
	transcriptPath  sql.NullString
	vocalClipPath   sql.NullString
	keyframePath    sql.NullString
	videoTheme      sql.NullString
	adScript        sql.NullString
	insertionJSON   sql.NullString
	adVideoPath     sql.NullString
	finalFile       sql.NullString
	errorMessage    sql.NullString
	createdAt       sql.NullString
	updatedAt       sql.NullString
	progressStage   sql.NullString
	progressPercent sql.NullFloat64
	progressMessage sql.NullString
	lastHeartbeat   sql.NullString
	needsReview     sql.NullInt64
	reviewReason    sql.NullString
}

func (r *itemRow) targets() []any {
	return []any{
		&r.id, &r.sourcePath, &r.videoTitle, &r.status, &r.durationSeconds,
		&r.transcriptPath, &r.vocalClipPath, &r.keyframePath, &r.videoTheme,
		&r.adScript, &r.insertionJSON, &r.adVideoPath, &r.finalFile,
		&r.errorMessage, &r.createdAt, &r.updatedAt, &r.progressStage,
		&r.progressPercent, &r.progressMessage, &r.lastHeartbeat,
		&r.needsReview, &r.reviewReason,
	}
}

func (r *itemRow) toItem() *Item {
	item := &Item{
		ID:              r.id,
		SourcePath:      r.sourcePath.String,
		VideoTitle:      r.videoTitle.String,
		Status:          Status(r.status),
		DurationSeconds: r.durationSeconds.Float64,
		TranscriptPath:  r.transcriptPath.String,
		VocalClipPath:   r.vocalClipPath.String,
		KeyframePath:    r.keyframePath.String,
		VideoTheme:      r.videoTheme.String,
		AdScript:        r.adScript.String,
		InsertionJSON:   r.insertionJSON.String,
		AdVideoPath:     r.adVideoPath.String,
		FinalFile:       r.finalFile.String,
		ErrorMessage:    r.errorMessage.String,
		ProgressStage:   r.progressStage.String,
		ProgressPercent: r.progressPercent.Float64,
		ProgressMessage: r.progressMessage.String,
		NeedsReview:     r.needsReview.Valid && r.needsReview.Int64 != 0,
		ReviewReason:    r.reviewReason.String,
	}
	if created, err := parseTimeString(r.createdAt.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(r.updatedAt.String); err == nil {
		item.UpdatedAt = updated
	}
	if r.lastHeartbeat.Valid {
		if heartbeat, err := parseTimeString(r.lastHeartbeat.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var row itemRow
	if err := scanner.Scan(row.targets()...); err != nil {
		return nil, err
	}
	return row.toItem(), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// parseTimeString accepts RFC3339 with or without sub-second precision.
func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value %q", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}
