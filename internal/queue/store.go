package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// Store defines the persistence interface for the message queue.
// Abstracted so the JSON file and SQLite backends are interchangeable.
type Store interface {
	// Load returns the whole queue. Read failures yield an empty queue.
	Load() []Message
	// Append adds msg to the tail of the queue.
	Append(msg Message) error
	// Recent returns the last n messages, oldest first.
	Recent(n int) []Message
	Close() error
}

// Paths locates the files the JSON backend works with.
type Paths struct {
	// Incoming is the queue file read and written by this package.
	Incoming string
	// History is seeded by EnsureFiles and otherwise left alone.
	History string
}

// EnsureFiles creates the parent directories of both files and seeds
// each missing file with an empty JSON array.
func EnsureFiles(p Paths) error {
	for _, path := range []string{p.Incoming, p.History} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return fmt.Errorf("seeding %s: %w", path, err)
		}
	}
	return nil
}

// FileStore implements Store on a single JSON array file.
//
// Every Append is a full read-modify-write. An advisory lock on
// "<incoming>.lock" serializes writers across processes, and the file is
// replaced by rename so readers never observe a partial write.
//
// The lock is per process: a *flock.Flock that already holds the lock
// returns at once from Lock, so goroutines sharing one FileStore are not
// excluded from each other. Concurrent callers in one process must go
// through a Writer; FileStore.Append itself is not safe for concurrent use.
type FileStore struct {
	paths  Paths
	lock   *flock.Flock
	logger zerolog.Logger
}

// NewFileStore creates a JSON-file-backed queue store.
func NewFileStore(paths Paths, logger zerolog.Logger) *FileStore {
	return &FileStore{
		paths:  paths,
		lock:   flock.New(paths.Incoming + ".lock"),
		logger: logger.With().Str("component", "filestore").Logger(),
	}
}

// Path returns the queue file location.
func (fs *FileStore) Path() string {
	return fs.paths.Incoming
}

// Load reads the queue file. A missing, empty or corrupt file is an
// empty queue.
func (fs *FileStore) Load() []Message {
	msgs, err := fs.read()
	if err != nil {
		fs.logger.Warn().Err(err).Str("path", fs.paths.Incoming).Msg("treating queue as empty")
		return []Message{}
	}
	return msgs
}

// Append adds msg to the tail of the queue file.
func (fs *FileStore) Append(msg Message) error {
	if err := os.MkdirAll(filepath.Dir(fs.paths.Incoming), 0o755); err != nil {
		return fmt.Errorf("creating queue directory: %w", err)
	}
	if err := fs.lock.Lock(); err != nil {
		return fmt.Errorf("locking queue: %w", err)
	}
	defer func() {
		if err := fs.lock.Unlock(); err != nil {
			fs.logger.Warn().Err(err).Msg("unlocking queue")
		}
	}()

	msgs := fs.Load()
	msgs = append(msgs, msg)
	return fs.write(msgs)
}

// Recent returns the last n messages of the queue file.
func (fs *FileStore) Recent(n int) []Message {
	return tail(fs.Load(), n)
}

// Close is a no-op; the lock file handle is released after every Append.
func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) read() ([]Message, error) {
	data, err := os.ReadFile(fs.paths.Incoming)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	if len(data) == 0 {
		return []Message{}, nil
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parsing queue: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// write marshals msgs and swaps them in over the queue file.
func (fs *FileStore) write(msgs []Message) error {
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling queue: %w", err)
	}

	dir := filepath.Dir(fs.paths.Incoming)
	tmp, err := os.CreateTemp(dir, filepath.Base(fs.paths.Incoming)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("setting queue permissions: %w", err)
	}
	if err := os.Rename(tmpName, fs.paths.Incoming); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing queue file: %w", err)
	}
	return nil
}
