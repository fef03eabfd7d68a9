// Package sqlite provides a notification store backed by modernc.org/sqlite
// (pure Go, zero CGO). The schema carries an explicit version table and
// ordered migrations applied at open, so a format change never silently
// drops persisted notifications.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/store"
)

const timeFormat = time.RFC3339Nano

const defaultMaxSize = 1000

var migrations = []string{
	// v1: notifications table
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		priority TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		read INTEGER NOT NULL DEFAULT 0,
		dismissible INTEGER NOT NULL DEFAULT 0,
		actions TEXT,
		payload TEXT,
		created_at TEXT NOT NULL,
		expires_at TEXT
	);
	CREATE INDEX idx_notifications_created_at ON notifications(created_at);`,
	// v2: read-state lookup used by unread counts
	`CREATE INDEX idx_notifications_read ON notifications(read);`,
}

// Store is a SQLite-backed implementation of store.Store
type Store struct {
	db      *sql.DB
	maxSize int
	logger  logger.Interface
}

// Options configures the SQLite store
type Options struct {
	// Path is the database file location
	Path string
	// MaxSize bounds the number of stored notifications (0 = default)
	MaxSize int
	// Logger receives migration and sweep diagnostics
	Logger logger.Interface
}

// New opens (or creates) the database and runs migrations.
// The file is created with 0600 permissions and its directory with 0700.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.ErrMissingConfig
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultMaxSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard
	}

	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	if _, err := os.Stat(opts.Path); os.IsNotExist(err) {
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("creating database file: %w", err)
		}
		_ = f.Close()
	}

	dsn := opts.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db, maxSize: opts.MaxSize, logger: opts.Logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		s.logger.Info(context.Background(), "applying notification store migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Load returns filtered notifications, newest first, pruning expired rows first
func (s *Store) Load(ctx context.Context, filter *store.Filter) ([]*core.Notification, error) {
	s.sweepExpired(ctx)

	query := `SELECT id, type, priority, title, message, source, read, dismissible,
		actions, payload, created_at, expires_at FROM notifications`
	where, args := buildWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"
	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var results []*core.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

// Save upserts a notification, evicting the oldest rows past capacity
func (s *Store) Save(ctx context.Context, n *core.Notification) error {
	if n.ID == "" {
		return errors.ErrInvalidNotification
	}

	actions, payload, err := marshalExtras(n)
	if err != nil {
		return err
	}

	var expiresAt any
	if n.ExpiresAt != nil {
		expiresAt = n.ExpiresAt.UTC().Format(timeFormat)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO notifications
		(id, type, priority, title, message, source, read, dismissible, actions, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, priority=excluded.priority, title=excluded.title,
			message=excluded.message, source=excluded.source, read=excluded.read,
			dismissible=excluded.dismissible, actions=excluded.actions,
			payload=excluded.payload, expires_at=excluded.expires_at`,
		n.ID, string(n.Type), string(n.Priority), n.Title, n.Message, n.Source,
		boolToInt(n.Read), boolToInt(n.Dismissible), actions, payload,
		n.CreatedAt.UTC().Format(timeFormat), expiresAt)
	if err != nil {
		return fmt.Errorf("upserting notification: %w", err)
	}

	return s.enforceCapacity(ctx)
}

// Delete removes a notification. Deleting an unknown ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	return nil
}

// MarkAsRead flips the read flag for one notification
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// MarkAllAsRead flips the read flag for every matching notification
func (s *Store) MarkAllAsRead(ctx context.Context, filter *store.Filter) error {
	query := "UPDATE notifications SET read = 1"
	where, args := buildWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("marking notifications read: %w", err)
	}
	return nil
}

// Count returns the number of matching notifications
func (s *Store) Count(ctx context.Context, filter *store.Filter) (int, error) {
	s.sweepExpired(ctx)

	query := "SELECT COUNT(*) FROM notifications"
	where, args := buildWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return count, nil
}

// Clear removes all notifications
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) sweepExpired(ctx context.Context) {
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < ?", now)
	if err != nil {
		s.logger.Warn(ctx, "expiry sweep failed", "error", err)
		return
	}
	if swept, _ := res.RowsAffected(); swept > 0 {
		s.logger.Debug(ctx, "swept expired notifications", "count", swept)
	}
}

func (s *Store) enforceCapacity(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id IN (
		SELECT id FROM notifications ORDER BY created_at DESC LIMIT -1 OFFSET ?
	)`, s.maxSize)
	if err != nil {
		return fmt.Errorf("enforcing capacity: %w", err)
	}
	return nil
}

// buildWhere translates a filter into a WHERE clause and its arguments
func buildWhere(filter *store.Filter) (string, []any) {
	if filter == nil {
		return "", nil
	}

	var clauses []string
	var args []any

	if len(filter.Types) > 0 {
		ph := placeholders(len(filter.Types))
		clauses = append(clauses, "type IN ("+ph+")")
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if len(filter.Priorities) > 0 {
		ph := placeholders(len(filter.Priorities))
		clauses = append(clauses, "priority IN ("+ph+")")
		for _, p := range filter.Priorities {
			args = append(args, string(p))
		}
	}
	if len(filter.Sources) > 0 {
		ph := placeholders(len(filter.Sources))
		clauses = append(clauses, "source IN ("+ph+")")
		for _, src := range filter.Sources {
			args = append(args, src)
		}
	}
	if filter.UnreadOnly {
		clauses = append(clauses, "read = 0")
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}

	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func marshalExtras(n *core.Notification) (actions, payload any, err error) {
	if len(n.Actions) > 0 {
		b, err := json.Marshal(n.Actions)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling actions: %w", err)
		}
		actions = string(b)
	}
	if n.Payload != nil {
		b, err := json.Marshal(n.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling payload: %w", err)
		}
		payload = string(b)
	}
	return actions, payload, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*core.Notification, error) {
	var n core.Notification
	var typ, priority, createdAt string
	var read, dismissible int
	var actions, payload, expiresAt sql.NullString

	err := row.Scan(&n.ID, &typ, &priority, &n.Title, &n.Message, &n.Source,
		&read, &dismissible, &actions, &payload, &createdAt, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("scanning notification: %w", err)
	}

	n.Type = core.Type(typ)
	n.Priority = core.Priority(priority)
	n.Read = read != 0
	n.Dismissible = dismissible != 0

	n.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if expiresAt.Valid {
		t, err := time.Parse(timeFormat, expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing expires_at: %w", err)
		}
		n.ExpiresAt = &t
	}
	if actions.Valid && actions.String != "" {
		if err := json.Unmarshal([]byte(actions.String), &n.Actions); err != nil {
			return nil, fmt.Errorf("unmarshaling actions: %w", err)
		}
	}
	if payload.Valid && payload.String != "" {
		n.Payload = &core.Payload{}
		if err := json.Unmarshal([]byte(payload.String), n.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling payload: %w", err)
		}
	}
	return &n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
