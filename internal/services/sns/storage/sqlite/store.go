// Package sqlite provides a SQLite-backed SNS storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/wavalabs/builder/internal/platform/storage/sqlitemigrate"
	"github.com/wavalabs/builder/internal/services/sns/storage"
	"github.com/wavalabs/builder/internal/services/sns/storage/sqlite/migrations"
)

// Store persists SNS connections and scheduled posts in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveConnection inserts a connection record.
func (s *Store) SaveConnection(ctx context.Context, conn storage.Connection) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(conn.ID) == "" {
		return fmt.Errorf("connection id is required")
	}
	if conn.Platform == "" {
		return fmt.Errorf("platform is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sns_connections (
		   id, platform, name, page_id, ig_user_id, threads_user_id,
		   youtube_channel_id, access_token, refresh_token, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID,
		string(conn.Platform),
		conn.Name,
		conn.PageID,
		conn.IGUserID,
		conn.ThreadsUserID,
		conn.YouTubeChannelID,
		conn.AccessToken,
		conn.RefreshToken,
		conn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

// ListConnections returns all connections ordered by creation time.
func (s *Store) ListConnections(ctx context.Context) ([]storage.Connection, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, platform, name, page_id, ig_user_id, threads_user_id,
		       youtube_channel_id, access_token, refresh_token, created_at
		FROM sns_connections
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	var out []storage.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}

// GetConnection returns one connection by id.
func (s *Store) GetConnection(ctx context.Context, id string) (storage.Connection, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Connection{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, platform, name, page_id, ig_user_id, threads_user_id,
		       youtube_channel_id, access_token, refresh_token, created_at
		FROM sns_connections
		WHERE id = ?`, id)
	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Connection{}, storage.ErrNotFound{Kind: "connection", ID: id}
		}
		return storage.Connection{}, err
	}
	return conn, nil
}

// DeleteConnection removes a connection and reports whether it existed.
func (s *Store) DeleteConnection(ctx context.Context, id string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}

	res, err := s.sqlDB.ExecContext(ctx, "DELETE FROM sns_connections WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete connection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete connection result: %w", err)
	}
	return affected > 0, nil
}

// UpdateConnectionTokens rewrites stored credentials after a refresh. An
// empty value keeps the current one, so rotating only the access token does
// not discard the refresh token.
func (s *Store) UpdateConnectionTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sns_connections
		 SET access_token = CASE WHEN ? != '' THEN ? ELSE access_token END,
		     refresh_token = CASE WHEN ? != '' THEN ? ELSE refresh_token END
		 WHERE id = ?`,
		accessToken, accessToken, refreshToken, refreshToken, id)
	if err != nil {
		return fmt.Errorf("update connection tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update connection tokens result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound{Kind: "connection", ID: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (storage.Connection, error) {
	var conn storage.Connection
	var platform string
	err := row.Scan(
		&conn.ID,
		&platform,
		&conn.Name,
		&conn.PageID,
		&conn.IGUserID,
		&conn.ThreadsUserID,
		&conn.YouTubeChannelID,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Connection{}, err
		}
		return storage.Connection{}, fmt.Errorf("scan connection: %w", err)
	}
	conn.Platform = storage.Platform(platform)
	return conn, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}
