package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS session (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// sqliteTimeout bounds each statement; Storage methods take no context.
const sqliteTimeout = 5 * time.Second

// SQLiteStorage keeps values in a SQLite key/value table.
type SQLiteStorage struct {
	db *sql.DB
}

var (
	_ Storage = (*SQLiteStorage)(nil)
	_ Batcher = (*SQLiteStorage)(nil)
)

// OpenSQLiteStorage opens (creating if needed) the database at path.
func OpenSQLiteStorage(path string) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session table: %w", err)
	}

	log.Debug().Str("path", path).Msg("sqlite storage initialized")

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database handle.
func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) Put(key, value string) error {
	return s.PutAll(map[string]string{key: value})
}

func (s *SQLiteStorage) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get session[%s]: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStorage) Remove(key string) error {
	return s.RemoveAll(key)
}

func (s *SQLiteStorage) PutAll(values map[string]string) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		for key, value := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO session (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value
			`, key, value)
			if err != nil {
				return fmt.Errorf("failed to set session[%s]: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) RemoveAll(keys ...string) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to delete session[%s]: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) inTx(fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
