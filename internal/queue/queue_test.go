package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(Paths{
		Incoming: filepath.Join(dir, "incoming.json"),
		History:  filepath.Join(dir, "browser-messages.json"),
	}, zerolog.Nop())
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "messages.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustMessage(t *testing.T, text, source string) Message {
	t.Helper()
	msg, err := NewMessage(PrefixMCP, text, source, nil)
	if err != nil {
		t.Fatalf("NewMessage(%q): %v", text, err)
	}
	return msg
}

func withFixedTime(t *testing.T, at time.Time) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = orig })
}

// ─── NewMessage ──────────────────────────────────────────────────────────────

func TestNewMessage_SetsEnvelope(t *testing.T) {
	withFixedTime(t, time.Date(2025, 3, 1, 12, 30, 45, 123_000_000, time.UTC))

	msg, err := NewMessage(PrefixHTTP, "hello", "browser", map[string]any{"url": "http://localhost:5173/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(msg.ID, "http_1740832245123_") {
		t.Errorf("ID = %q, want http_1740832245123_ prefix", msg.ID)
	}
	if msg.Timestamp != "2025-03-01T12:30:45.123Z" {
		t.Errorf("Timestamp = %q, want 2025-03-01T12:30:45.123Z", msg.Timestamp)
	}
	if msg.Processed {
		t.Error("Processed should start false")
	}
	if msg.URL() != "http://localhost:5173/" {
		t.Errorf("URL() = %q", msg.URL())
	}
}

func TestNewMessage_RejectsEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := NewMessage(PrefixMCP, text, "mcp-tool", nil)
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("NewMessage(%q) error = %v, want ErrEmptyMessage", text, err)
		}
	}
}

func TestNewID_Unique(t *testing.T) {
	at := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := NewID(PrefixMCP, at)
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestMessage_URLMissing(t *testing.T) {
	msg := Message{Metadata: map[string]any{"url": 42}}
	if msg.URL() != "" {
		t.Errorf("URL() = %q, want empty for non-string url", msg.URL())
	}
	if (Message{}).URL() != "" {
		t.Error("URL() should be empty without metadata")
	}
}

// ─── FileStore ───────────────────────────────────────────────────────────────

func TestFileStore_AppendThenRecent(t *testing.T) {
	store := newTestFileStore(t)
	msg := mustMessage(t, "hello", "browser")

	if err := store.Append(msg); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := store.Recent(1)
	if len(got) != 1 {
		t.Fatalf("Recent(1) returned %d messages, want 1", len(got))
	}
	if got[0].ID != msg.ID || got[0].Message != "hello" || got[0].Source != "browser" {
		t.Errorf("Recent(1) = %+v, want %+v", got[0], msg)
	}
}

func TestFileStore_Ordering(t *testing.T) {
	store := newTestFileStore(t)
	var want []string
	for i := 0; i < 5; i++ {
		msg := mustMessage(t, fmt.Sprintf("m%d", i), "test")
		want = append(want, msg.ID)
		if err := store.Append(msg); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got := store.Recent(5)
	if len(got) != 5 {
		t.Fatalf("Recent(5) returned %d messages", len(got))
	}
	for i, m := range got {
		if m.ID != want[i] {
			t.Errorf("position %d: id = %s, want %s", i, m.ID, want[i])
		}
	}

	last2 := store.Recent(2)
	if len(last2) != 2 || last2[0].Message != "m3" || last2[1].Message != "m4" {
		t.Errorf("Recent(2) = %+v, want m3, m4", last2)
	}
}

func TestFileStore_RecentBounded(t *testing.T) {
	store := newTestFileStore(t)
	for i := 0; i < 2; i++ {
		if err := store.Append(mustMessage(t, fmt.Sprintf("m%d", i), "test")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if got := store.Recent(10); len(got) != 2 {
		t.Errorf("Recent(10) returned %d messages, want 2", len(got))
	}
	if got := store.Recent(0); len(got) != 1 || got[0].Message != "m1" {
		t.Errorf("Recent(0) = %+v, want only the latest message", got)
	}
}

func TestFileStore_EmptyQueue(t *testing.T) {
	store := newTestFileStore(t)

	if got := store.Load(); len(got) != 0 {
		t.Errorf("Load on missing file returned %d messages", len(got))
	}
	if got := store.Recent(3); len(got) != 0 {
		t.Errorf("Recent on missing file returned %d messages", len(got))
	}
}

func TestFileStore_CorruptFileIsEmpty(t *testing.T) {
	store := newTestFileStore(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := store.Load(); len(got) != 0 {
		t.Errorf("Load on corrupt file returned %d messages, want 0", len(got))
	}

	// The next append heals the file.
	if err := store.Append(mustMessage(t, "after corruption", "test")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := store.Load(); len(got) != 1 {
		t.Errorf("Load after heal returned %d messages, want 1", len(got))
	}
}

func TestFileStore_PersistedFormat(t *testing.T) {
	store := newTestFileStore(t)
	if err := store.Append(mustMessage(t, "hello", "browser")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("queue file is not a JSON array: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("got %d entries, want 1", len(raw))
	}
	for _, key := range []string{"id", "message", "source", "timestamp", "processed"} {
		if _, ok := raw[0][key]; !ok {
			t.Errorf("missing key %q in persisted message", key)
		}
	}
	if raw[0]["processed"] != false {
		t.Errorf("processed = %v, want false", raw[0]["processed"])
	}
	if _, ok := raw[0]["metadata"]; ok {
		t.Error("empty metadata should be omitted")
	}
}

func TestFileStore_AppendWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(Paths{Incoming: filepath.Join(blocker, "incoming.json")}, zerolog.Nop())

	if err := store.Append(mustMessage(t, "hello", "test")); err == nil {
		t.Error("expected error when the queue directory cannot be created")
	}
}

func TestEnsureFiles_SeedsBothFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".kiro", "browser-messages")
	paths := Paths{
		Incoming: filepath.Join(dir, "incoming.json"),
		History:  filepath.Join(dir, "browser-messages.json"),
	}

	if err := EnsureFiles(paths); err != nil {
		t.Fatalf("EnsureFiles: %v", err)
	}

	for _, p := range []string{paths.Incoming, paths.History} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("reading %s: %v", p, err)
		}
		if string(data) != "[]" {
			t.Errorf("%s = %q, want []", p, data)
		}
	}
}

func TestEnsureFiles_KeepsExisting(t *testing.T) {
	store := newTestFileStore(t)
	if err := store.Append(mustMessage(t, "keep me", "test")); err != nil {
		t.Fatal(err)
	}

	if err := EnsureFiles(store.paths); err != nil {
		t.Fatalf("EnsureFiles: %v", err)
	}
	if got := store.Load(); len(got) != 1 {
		t.Errorf("EnsureFiles clobbered the queue: %d messages left", len(got))
	}
}

// ─── SQLiteStore ─────────────────────────────────────────────────────────────

func TestSQLiteStore_AppendOrderAndMetadata(t *testing.T) {
	store := newTestSQLiteStore(t)

	first := mustMessage(t, "first", "test")
	second, err := NewMessage(PrefixHTTP, "second", "browser", map[string]any{"url": "http://localhost/page"})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []Message{first, second} {
		if err := store.Append(m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all := store.Load()
	if len(all) != 2 || all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("Load = %+v, want [first, second]", all)
	}

	latest := store.Recent(1)
	if len(latest) != 1 || latest[0].ID != second.ID {
		t.Fatalf("Recent(1) = %+v, want second", latest)
	}
	if latest[0].URL() != "http://localhost/page" {
		t.Errorf("metadata url = %q", latest[0].URL())
	}
	if latest[0].Processed {
		t.Error("Processed should be false")
	}

	if got := store.Recent(50); len(got) != 2 || got[0].ID != first.ID {
		t.Errorf("Recent(50) = %+v, want both messages oldest first", got)
	}
}

func TestSQLiteStore_DuplicateIDRejected(t *testing.T) {
	store := newTestSQLiteStore(t)
	msg := mustMessage(t, "once", "test")

	if err := store.Append(msg); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(msg); err == nil {
		t.Error("expected error for a reused id")
	}
}

func TestSQLiteStore_OpenFailure(t *testing.T) {
	orig := openDB
	openDB = func(driverName, dataSourceName string) (*sql.DB, error) {
		return nil, errors.New("boom")
	}
	t.Cleanup(func() { openDB = orig })

	if _, err := NewSQLiteStore(filepath.Join(t.TempDir(), "messages.db"), zerolog.Nop()); err == nil {
		t.Error("expected error when the database cannot be opened")
	}
}

// ─── Writer ──────────────────────────────────────────────────────────────────

func TestWriter_ConcurrentAppendsAreNotLost(t *testing.T) {
	store := newTestFileStore(t)
	w := NewWriter(store)
	defer w.Close()

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := NewMessage(PrefixHTTP, fmt.Sprintf("m%d", i), "test", nil)
			if err != nil {
				errs <- err
				return
			}
			errs <- w.Append(msg)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if got := w.Load(); len(got) != n {
		t.Errorf("queue holds %d messages, want %d", len(got), n)
	}
}

func TestFileStore_SeparateStoresShareFileWithoutLoss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incoming.json")

	// Two stores on one path stand in for two processes: each has its own
	// lock handle and its own writer goroutine.
	var writers []*Writer
	for i := 0; i < 2; i++ {
		w := NewWriter(NewFileStore(Paths{Incoming: path}, zerolog.Nop()))
		t.Cleanup(w.Close)
		writers = append(writers, w)
	}

	const perWriter = 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*perWriter)
	for wi, w := range writers {
		for i := 0; i < perWriter; i++ {
			wg.Add(1)
			go func(w *Writer, text string) {
				defer wg.Done()
				msg, err := NewMessage(PrefixHTTP, text, "test", nil)
				if err != nil {
					errs <- err
					return
				}
				errs <- w.Append(msg)
			}(w, fmt.Sprintf("w%d-m%d", wi, i))
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := NewFileStore(Paths{Incoming: path}, zerolog.Nop()).Load()
	if len(got) != 2*perWriter {
		t.Fatalf("queue holds %d messages, want %d", len(got), 2*perWriter)
	}
	seen := make(map[string]bool, len(got))
	for _, m := range got {
		seen[m.Message] = true
	}
	if len(seen) != 2*perWriter {
		t.Errorf("got %d distinct messages, want %d", len(seen), 2*perWriter)
	}
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w := NewWriter(newTestFileStore(t))
	w.Close()
	w.Close() // idempotent

	err := w.Append(mustMessage(t, "late", "test"))
	if !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Append after Close error = %v, want ErrWriterClosed", err)
	}
}

func TestWriter_SurfacesStoreError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewWriter(NewFileStore(Paths{Incoming: filepath.Join(blocker, "q.json")}, zerolog.Nop()))
	defer w.Close()

	if err := w.Append(mustMessage(t, "x", "test")); err == nil {
		t.Error("expected the store's write error to reach the caller")
	}
}
