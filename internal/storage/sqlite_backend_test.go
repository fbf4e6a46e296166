package storage_test

import (
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/JamesPrial/mysql-mcp/internal/storage"
	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestBackend creates a SQLiteBackend in a per-test temporary directory.
func newTestBackend(t *testing.T) (*storage.SQLiteBackend, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	b, err := storage.NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return b, dbPath
}

// openDirectDB opens the file without the backend, for schema checks.
func openDirectDB(t *testing.T, dbPath string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open db directly: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// ---------------------------------------------------------------------------
// Schema tests
// ---------------------------------------------------------------------------

func Test_NewSQLiteBackend_CreatesSchema(t *testing.T) {
	t.Parallel()
	_, dbPath := newTestBackend(t)

	db := openDirectDB(t, dbPath)

	tests := []struct {
		name    string
		objType string
		objName string
	}{
		{name: "diagnostics table", objType: "table", objName: "diagnostics"},
		{name: "operation index", objType: "index", objName: "idx_diagnostics_operation"},
		{name: "kind index", objType: "index", objName: "idx_diagnostics_kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var found string
			err := db.QueryRow(
				`SELECT name FROM sqlite_master WHERE type=? AND name=?`,
				tt.objType, tt.objName,
			).Scan(&found)
			if err != nil {
				t.Fatalf("%s %q not found: %v", tt.objType, tt.objName, err)
			}
		})
	}
}

func Test_NewSQLiteBackend_WALMode(t *testing.T) {
	t.Parallel()
	_, dbPath := newTestBackend(t)

	db := openDirectDB(t, dbPath)
	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func Test_NewSQLiteBackend_Idempotent(t *testing.T) {
	t.Parallel()
	b, dbPath := newTestBackend(t)

	if err := b.AppendEntry(sampleEntry("query", 1)); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	again, err := storage.NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("second NewSQLiteBackend: %v", err)
	}
	history, err := again.LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("re-opening lost data: len = %d, want 1", len(history))
	}
}

func Test_NewSQLiteBackend_CreatesParentDirs(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "a", "b", "diag.db")
	if _, err := storage.NewSQLiteBackend(dbPath); err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Round-trip and filtering
// ---------------------------------------------------------------------------

func Test_SQLiteBackend_LoadHistory_Empty(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)

	history, err := b.LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Errorf("LoadHistory = %#v, want empty non-nil slice", history)
	}
}

func Test_SQLiteBackend_RoundTrip(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)

	noParams := storage.LogEntry{
		Timestamp: "2026-03-01T10:00:00.000Z",
		Operation: "query",
		Kind:      "InvalidInput",
		Error:     "Only SELECT queries are allowed",
	}
	want := []storage.LogEntry{sampleEntry("execute", 1), noParams, sampleEntry("explain", 3)}
	for _, e := range want {
		if err := b.AppendEntry(e); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	got, err := b.LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("history mismatch\n got: %#v\nwant: %#v", got, want)
	}
}

func Test_SQLiteBackend_Filters(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)

	entries := []storage.LogEntry{
		sampleEntry("query", 1),
		sampleEntry("execute", 2),
		sampleEntry("query", 3),
	}
	entries[1].Kind = "InvalidInput"
	for _, e := range entries {
		if err := b.AppendEntry(e); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	tests := []struct {
		name  string
		fetch func() ([]storage.LogEntry, error)
		want  []storage.LogEntry
	}{
		{
			name:  "by operation",
			fetch: func() ([]storage.LogEntry, error) { return b.GetEntriesByOperation("query") },
			want:  []storage.LogEntry{entries[0], entries[2]},
		},
		{
			name:  "by kind",
			fetch: func() ([]storage.LogEntry, error) { return b.GetEntriesByKind("InvalidInput") },
			want:  []storage.LogEntry{entries[1]},
		},
		{
			name:  "no match",
			fetch: func() ([]storage.LogEntry, error) { return b.GetEntriesByOperation("connect_db") },
			want:  []storage.LogEntry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fetch()
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v\nwant %#v", got, tt.want)
			}
		})
	}
}

func Test_SQLiteBackend_ImplementsQueryable(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)

	var sb storage.StorageBackend = b
	if _, ok := sb.(storage.QueryableStorageBackend); !ok {
		t.Error("SQLiteBackend should implement QueryableStorageBackend")
	}
}
