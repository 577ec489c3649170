package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteStore implements Store on an embedded SQLite database.
// Unlike FileStore, appends are single-row inserts, so concurrent
// processes cannot lose each other's messages.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and
// runs migrations.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("queue: create data dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("queue: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "sqlitestore").Logger(),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT    NOT NULL UNIQUE,
			message    TEXT    NOT NULL,
			source     TEXT    NOT NULL,
			metadata   TEXT,
			timestamp  TEXT    NOT NULL,
			processed  INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load returns every message in arrival order.
func (s *SQLiteStore) Load() []Message {
	msgs, err := s.query(`
		SELECT id, message, source, metadata, timestamp, processed
		FROM messages ORDER BY seq ASC`)
	if err != nil {
		s.logger.Warn().Err(err).Msg("treating queue as empty")
		return []Message{}
	}
	return msgs
}

// Append inserts msg at the tail of the queue.
func (s *SQLiteStore) Append(msg Message) error {
	var metadata *string
	if len(msg.Metadata) > 0 {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		v := string(data)
		metadata = &v
	}

	_, err := s.db.Exec(
		`INSERT INTO messages (id, message, source, metadata, timestamp, processed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Message, msg.Source, metadata, msg.Timestamp, msg.Processed,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Recent returns the last n messages, oldest first.
func (s *SQLiteStore) Recent(n int) []Message {
	if n <= 0 {
		n = 1
	}
	msgs, err := s.query(`
		SELECT id, message, source, metadata, timestamp, processed FROM (
			SELECT seq, id, message, source, metadata, timestamp, processed
			FROM messages ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, n)
	if err != nil {
		s.logger.Warn().Err(err).Msg("treating queue as empty")
		return []Message{}
	}
	return msgs
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(query string, args ...any) ([]Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var (
			m        Message
			metadata sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Message, &m.Source, &metadata, &m.Timestamp, &m.Processed); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				s.logger.Warn().Err(err).Str("id", m.ID).Msg("dropping unreadable metadata")
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
