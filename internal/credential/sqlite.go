package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wesm/minutes/internal/fileutil"
)

const defaultSQLiteParams = "?_busy_timeout=5000"

// The single-row table makes Set one statement, so token and profile are
// always written together.
const sessionSchema = `
CREATE TABLE IF NOT EXISTS session (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	token      TEXT NOT NULL,
	profile    TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore persists the credential in a SQLite database so it survives
// process restarts.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the credential database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fileutil.SecureMkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// A single connection serialises writers and keeps reads consistent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping session database: %w", err)
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session schema: %w", err)
	}
	if err := fileutil.SecureChmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("chmod session database: %w", err)
	}

	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Get returns the stored credential, or nil when none is stored. Corrupt
// rows are deleted and reported as absent.
func (s *SQLiteStore) Get(ctx context.Context) (*Credential, error) {
	var token, profile string
	err := s.db.QueryRowContext(ctx, `SELECT token, profile FROM session WHERE id = 1`).Scan(&token, &profile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	c, err := decode(token, profile)
	if err != nil {
		s.logger.Warn("discarding corrupt stored session", "err", err)
		if clearErr := s.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}
	return c, nil
}

// Set replaces the stored credential.
func (s *SQLiteStore) Set(ctx context.Context, c Credential) error {
	profile, err := encodeProfile(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, token, profile, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`, c.Token, profile, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Clear removes the stored credential. Clearing an empty store is not an error.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
