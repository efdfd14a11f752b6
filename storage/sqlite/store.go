// Package sqlite provides a SQLite implementation of the formsync DraftStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stdSync "sync"

	"github.com/ngx-vest-forms/formsync"
	formErrors "github.com/ngx-vest-forms/formsync/errors"
	"github.com/ngx-vest-forms/formsync/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for better error handling
var (
	ErrStoreClosed = errors.New("store is closed")
)

// Config holds configuration options for the DraftStore.
//
// Production-ready defaults are applied by DefaultConfig() including:
//   - WAL mode enabled for better concurrency
//   - Connection pool with 25 max open, 5 max idle connections
//   - Connection lifetimes of 1 hour max, 5 minutes max idle
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:drafts.db?_journal_mode=WAL"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// TableName is the name of the table to store drafts.
	// Defaults to "drafts" if empty.
	TableName string

	// KeepRevisions bounds how many revisions are retained per form.
	// Older revisions are pruned after each save. Zero keeps everything.
	KeepRevisions int

	// Connection pool settings for production workloads.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.TableName == "" {
		c.TableName = "drafts"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "?_journal_mode=") {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults for SQLite.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// NewWithDataSource is a convenience constructor
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// Store implements the formsync.DraftStore interface for SQLite.
type Store struct {
	db            *sql.DB
	mu            stdSync.RWMutex
	closed        bool
	tableName     string
	keepRevisions int
}

// Compile-time check to ensure Store satisfies the DraftStore interface
var _ formsync.DraftStore = (*Store)(nil)

// New creates a new Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component("sqlite-store"))
	logger.InfoContext(context.Background(), "Opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{
		db:            db,
		tableName:     config.TableName,
		keepRevisions: config.KeepRevisions,
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	logger.InfoContext(context.Background(), "SQLite DraftStore successfully initialized",
		slog.String("table_name", config.TableName),
	)
	return store, nil
}

// setupSchema creates the drafts table if it doesn't exist.
func (s *Store) setupSchema() error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %[1]s (
        form_id     TEXT NOT NULL,
        revision    INTEGER NOT NULL,
        model       TEXT NOT NULL,
        saved_at    TIMESTAMP NOT NULL,
        PRIMARY KEY (form_id, revision)
    );
    CREATE INDEX IF NOT EXISTS idx_%[1]s_form_saved ON %[1]s (form_id, saved_at);
    `, s.tableName)
	_, err := s.db.Exec(query)
	return err
}

// Save persists a snapshot of the form's model value. Revisions increase
// monotonically per form; the revision counter and the insert run in one
// transaction so concurrent saves cannot collide.
func (s *Store) Save(ctx context.Context, formID string, model formsync.ModelValue) (int64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	s.mu.RUnlock()

	if formID == "" {
		return 0, formErrors.NewStorageError(formErrors.OpStore, fmt.Errorf("form id is required"))
	}

	modelJSON, err := json.Marshal(model)
	if err != nil {
		return 0, formErrors.NewStorageError(formErrors.OpStore,
			fmt.Errorf("failed to encode model: %w", err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, formErrors.NewStorageError(formErrors.OpStore, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var revision int64
	query := fmt.Sprintf(`SELECT COALESCE(MAX(revision), 0) + 1 FROM %s WHERE form_id = ?`, s.tableName)
	if err = tx.QueryRowContext(ctx, query, formID).Scan(&revision); err != nil {
		return 0, formErrors.NewStorageError(formErrors.OpStore, err)
	}

	query = fmt.Sprintf(`INSERT INTO %s (form_id, revision, model, saved_at) VALUES (?, ?, ?, ?)`, s.tableName)
	if _, err = tx.ExecContext(ctx, query, formID, revision, string(modelJSON), time.Now().UTC()); err != nil {
		return 0, formErrors.NewStorageError(formErrors.OpStore, err)
	}

	if s.keepRevisions > 0 {
		query = fmt.Sprintf(`DELETE FROM %s WHERE form_id = ? AND revision <= ?`, s.tableName)
		if _, err = tx.ExecContext(ctx, query, formID, revision-int64(s.keepRevisions)); err != nil {
			return 0, formErrors.NewStorageError(formErrors.OpStore, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, formErrors.NewStorageError(formErrors.OpStore, err)
	}

	return revision, nil
}

// Latest returns the most recent draft for a form, or nil if none exists.
func (s *Store) Latest(ctx context.Context, formID string) (*formsync.Draft, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`SELECT form_id, revision, model, saved_at FROM %s WHERE form_id = ? ORDER BY revision DESC LIMIT 1`, s.tableName)
	draft, err := s.scanDraft(s.db.QueryRowContext(ctx, query, formID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, formErrors.NewStorageError(formErrors.OpLoad, err)
	}
	return draft, nil
}

// List returns drafts for a form, newest first, up to limit (0 = all).
func (s *Store) List(ctx context.Context, formID string, limit int) ([]*formsync.Draft, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	if limit <= 0 {
		// SQLite treats a negative LIMIT as unbounded.
		limit = -1
	}
	query := fmt.Sprintf(`SELECT form_id, revision, model, saved_at FROM %s WHERE form_id = ? ORDER BY revision DESC LIMIT ?`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query, formID, limit)
	if err != nil {
		return nil, formErrors.NewStorageError(formErrors.OpLoad, err)
	}
	defer rows.Close()

	var drafts []*formsync.Draft
	for rows.Next() {
		draft, err := s.scanDraft(rows)
		if err != nil {
			return nil, formErrors.NewStorageError(formErrors.OpLoad, err)
		}
		drafts = append(drafts, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, formErrors.NewStorageError(formErrors.OpLoad, err)
	}
	return drafts, nil
}

// Delete removes all drafts for a form.
func (s *Store) Delete(ctx context.Context, formID string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`DELETE FROM %s WHERE form_id = ?`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, formID); err != nil {
		return formErrors.NewStorageError(formErrors.OpStore, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanDraft(row rowScanner) (*formsync.Draft, error) {
	var (
		draft     formsync.Draft
		modelJSON string
	)
	if err := row.Scan(&draft.FormID, &draft.Revision, &modelJSON, &draft.SavedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(modelJSON), &draft.Model); err != nil {
		return nil, fmt.Errorf("failed to decode model for form %s revision %d: %w", draft.FormID, draft.Revision, err)
	}
	return &draft, nil
}
