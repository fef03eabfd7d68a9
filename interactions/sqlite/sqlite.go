// Package sqlite provides a SQLite-backed interaction store using
// modernc.org/sqlite (pure Go, zero CGO). Migrations follow the same
// versioned scheme as the notification store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
)

const timeFormat = time.RFC3339Nano

var migrations = []string{
	// v1: interactions table
	`CREATE TABLE interactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		from_user TEXT NOT NULL,
		to_user TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT,
		created_at TEXT NOT NULL,
		responded_at TEXT
	);
	CREATE INDEX idx_interactions_to_user ON interactions(to_user);`,
}

// Store is a SQLite-backed interaction store
type Store struct {
	db     *sql.DB
	logger logger.Interface
}

// Options configures the SQLite interaction store
type Options struct {
	// Path is the database file location
	Path string
	// Logger receives migration diagnostics
	Logger logger.Interface
}

// New opens (or creates) the database and runs migrations
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.ErrMissingConfig
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

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: opts.Logger}
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
		s.logger.Info(context.Background(), "applying interaction store migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Save upserts an interaction by ID
func (s *Store) Save(ctx context.Context, interaction *core.Interaction) error {
	if interaction == nil || interaction.ID == "" {
		return errors.ErrInvalidInteraction
	}

	var payload any
	if interaction.Payload != nil {
		b, err := json.Marshal(interaction.Payload)
		if err != nil {
			return fmt.Errorf("marshaling payload: %w", err)
		}
		payload = string(b)
	}
	var respondedAt any
	if interaction.RespondedAt != nil {
		respondedAt = interaction.RespondedAt.UTC().Format(timeFormat)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO interactions
		(id, type, from_user, to_user, message, priority, status, payload, created_at, responded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, responded_at=excluded.responded_at,
			message=excluded.message, priority=excluded.priority, payload=excluded.payload`,
		interaction.ID, string(interaction.Type), interaction.FromUser, interaction.ToUser,
		interaction.Message, string(interaction.Priority), string(interaction.Status),
		payload, interaction.CreatedAt.UTC().Format(timeFormat), respondedAt)
	if err != nil {
		return fmt.Errorf("upserting interaction: %w", err)
	}
	return nil
}

// Get returns an interaction by ID
func (s *Store) Get(ctx context.Context, id string) (*core.Interaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, type, from_user, to_user, message,
		priority, status, payload, created_at, responded_at FROM interactions WHERE id = ?`, id)

	interaction, err := scanInteraction(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrInteractionNotFound
	}
	return interaction, err
}

// ListForUser returns interactions addressed to the user, newest first
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*core.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, from_user, to_user, message,
		priority, status, payload, created_at, responded_at FROM interactions
		WHERE to_user = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	var results []*core.Interaction
	for rows.Next() {
		interaction, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, interaction)
	}
	return results, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (*core.Interaction, error) {
	var interaction core.Interaction
	var typ, priority, status, createdAt string
	var payload, respondedAt sql.NullString

	err := row.Scan(&interaction.ID, &typ, &interaction.FromUser, &interaction.ToUser,
		&interaction.Message, &priority, &status, &payload, &createdAt, &respondedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning interaction: %w", err)
	}

	interaction.Type = core.InteractionType(typ)
	interaction.Priority = core.Priority(priority)
	interaction.Status = core.InteractionStatus(status)

	interaction.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if respondedAt.Valid {
		t, err := time.Parse(timeFormat, respondedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing responded_at: %w", err)
		}
		interaction.RespondedAt = &t
	}
	if payload.Valid && payload.String != "" {
		interaction.Payload = &core.Payload{}
		if err := json.Unmarshal([]byte(payload.String), interaction.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling payload: %w", err)
		}
	}
	return &interaction, nil
}
