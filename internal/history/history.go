// Package history persists the chat transcript. The log is capped: only the
// most recent entries are kept, oldest dropped first.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxEntries is the transcript cap. Appending beyond it drops the oldest rows.
const maxEntries = 50

// Sender identifies who produced a message.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Entry is one persisted chat message.
type Entry struct {
	ID        string
	Content   string
	Sender    string
	CreatedAt time.Time
	Cached    bool
	IsError   bool
}

// Store wraps a SQLite database holding the chat transcript.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "history.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}

	// Single connection avoids "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// Append stores a message and trims the transcript to the cap. The entry's
// ID and CreatedAt are filled in when zero. Returns the stored entry.
func (s *Store) Append(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Sender != SenderUser && e.Sender != SenderBot {
		return Entry{}, fmt.Errorf("invalid sender %q", e.Sender)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Entry{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, seq, content, sender, created_at, cached, is_error)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages), ?, ?, ?, ?, ?)`,
		e.ID, e.Content, e.Sender, e.CreatedAt.UTC().Format(time.RFC3339), e.Cached, e.IsError,
	); err != nil {
		return Entry{}, fmt.Errorf("inserting message: %w", err)
	}

	// Drop oldest entries beyond the cap. seq preserves insertion order even
	// when wall-clock timestamps collide.
	if _, err := tx.Exec(`
		DELETE FROM messages WHERE seq <= (SELECT MAX(seq) FROM messages) - ?`,
		maxEntries,
	); err != nil {
		return Entry{}, fmt.Errorf("trimming history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("committing message: %w", err)
	}
	return e, nil
}

// Recent returns up to n messages in insertion order, oldest first. n <= 0
// returns the full (capped) transcript.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 || n > maxEntries {
		n = maxEntries
	}
	rows, err := s.db.Query(`
		SELECT id, content, sender, created_at, cached, is_error
		FROM (SELECT * FROM messages ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Content, &e.Sender, &createdAt, &e.Cached, &e.IsError); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored messages.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// Clear removes the entire transcript.
func (s *Store) Clear() error {
	_, err := s.db.Exec("DELETE FROM messages")
	return err
}
