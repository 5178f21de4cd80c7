package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wavalabs/builder/internal/services/sns/storage"
)

// AddScheduleItem inserts a pending scheduled post.
func (s *Store) AddScheduleItem(ctx context.Context, item storage.ScheduleItem) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("schedule item id is required")
	}
	if strings.TrimSpace(item.ConnectionID) == "" {
		return fmt.Errorf("connection id is required")
	}
	if strings.TrimSpace(item.Caption) == "" {
		return fmt.Errorf("caption is required")
	}
	if item.ScheduledAt <= 0 {
		return fmt.Errorf("scheduled_at is required")
	}
	status := item.Status
	if status == "" {
		status = storage.SchedulePending
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sns_schedule_items (
		   id, connection_id, caption, image_url, video_url, idea,
		   scheduled_at, status, created_at, posted_at, post_id, error
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.ConnectionID,
		item.Caption,
		item.ImageURL,
		item.VideoURL,
		item.Idea,
		item.ScheduledAt,
		string(status),
		item.CreatedAt,
		item.PostedAt,
		item.PostID,
		item.Error,
	)
	if err != nil {
		return fmt.Errorf("insert schedule item: %w", err)
	}
	return nil
}

// ListSchedule returns schedule items, pending only unless includeResolved.
func (s *Store) ListSchedule(ctx context.Context, includeResolved bool) ([]storage.ScheduleItem, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, connection_id, caption, image_url, video_url, idea,
		       scheduled_at, status, created_at, posted_at, post_id, error
		FROM sns_schedule_items`
	args := []any{}
	if !includeResolved {
		query += " WHERE status = ?"
		args = append(args, string(storage.SchedulePending))
	}
	query += " ORDER BY scheduled_at ASC, id ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	var out []storage.ScheduleItem
	for rows.Next() {
		item, err := scanScheduleItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule: %w", err)
	}
	return out, nil
}

// DueScheduleItems returns pending items whose time has passed.
func (s *Store) DueScheduleItems(ctx context.Context, nowMillis int64) ([]storage.ScheduleItem, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, connection_id, caption, image_url, video_url, idea,
		       scheduled_at, status, created_at, posted_at, post_id, error
		FROM sns_schedule_items
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`,
		string(storage.SchedulePending), nowMillis)
	if err != nil {
		return nil, fmt.Errorf("query due schedule items: %w", err)
	}
	defer rows.Close()

	var out []storage.ScheduleItem
	for rows.Next() {
		item, err := scanScheduleItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due schedule items: %w", err)
	}
	return out, nil
}

// MarkSchedulePosted resolves an item as published.
func (s *Store) MarkSchedulePosted(ctx context.Context, id, postID string, postedAtMillis int64) error {
	return s.resolveScheduleItem(ctx, id, storage.SchedulePosted, postID, "", postedAtMillis)
}

// MarkScheduleFailed resolves an item as failed.
func (s *Store) MarkScheduleFailed(ctx context.Context, id, errMsg string, postedAtMillis int64) error {
	return s.resolveScheduleItem(ctx, id, storage.ScheduleFailed, "", errMsg, postedAtMillis)
}

func (s *Store) resolveScheduleItem(ctx context.Context, id string, status storage.ScheduleStatus, postID, errMsg string, postedAtMillis int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(ctx,
		"UPDATE sns_schedule_items SET status = ?, post_id = ?, error = ?, posted_at = ? WHERE id = ?",
		string(status), postID, errMsg, postedAtMillis, id)
	if err != nil {
		return fmt.Errorf("resolve schedule item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve schedule item result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound{Kind: "schedule item", ID: id}
	}
	return nil
}

// DeleteScheduleItem removes an item and reports whether it existed.
func (s *Store) DeleteScheduleItem(ctx context.Context, id string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}

	res, err := s.sqlDB.ExecContext(ctx, "DELETE FROM sns_schedule_items WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete schedule item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete schedule item result: %w", err)
	}
	return affected > 0, nil
}

func scanScheduleItem(row rowScanner) (storage.ScheduleItem, error) {
	var item storage.ScheduleItem
	var status string
	err := row.Scan(
		&item.ID,
		&item.ConnectionID,
		&item.Caption,
		&item.ImageURL,
		&item.VideoURL,
		&item.Idea,
		&item.ScheduledAt,
		&status,
		&item.CreatedAt,
		&item.PostedAt,
		&item.PostID,
		&item.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ScheduleItem{}, err
		}
		return storage.ScheduleItem{}, fmt.Errorf("scan schedule item: %w", err)
	}
	item.Status = storage.ScheduleStatus(status)
	return item, nil
}
