package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register sqlite driver
)

// schemaDDL defines the database schema for the SQLite backend.
// Params are stored as JSON text.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS diagnostics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    operation TEXT NOT NULL,
    sql_text TEXT NOT NULL DEFAULT '',
    params TEXT NOT NULL DEFAULT '[]',
    kind TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_diagnostics_operation ON diagnostics(operation);
CREATE INDEX IF NOT EXISTS idx_diagnostics_kind ON diagnostics(kind);
`

const sqliteSelectColumns = `SELECT timestamp, operation, sql_text, params, kind, error FROM diagnostics`

// SQLiteBackend implements QueryableStorageBackend using a SQLite file in WAL mode.
type SQLiteBackend struct {
	// DBPath is the absolute path to the SQLite database file.
	DBPath string
}

// NewSQLiteBackend creates a SQLiteBackend and initializes its schema.
//
// Parent directories are created if they don't exist.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	backend := &SQLiteBackend{
		DBPath: dbPath,
	}

	if err := backend.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return backend, nil
}

// connect opens the database with WAL journaling enabled.
func (b *SQLiteBackend) connect() (*sql.DB, error) {
	dir := filepath.Dir(b.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", b.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	return db, nil
}

func (b *SQLiteBackend) ensureSchema() error {
	db, err := b.connect()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}

	return nil
}

// LoadHistory loads all entries in insertion order.
func (b *SQLiteBackend) LoadHistory() ([]LogEntry, error) {
	return b.selectEntries(sqliteSelectColumns + ` ORDER BY id`)
}

// AppendEntry inserts entry.
func (b *SQLiteBackend) AppendEntry(entry LogEntry) error {
	db, err := b.connect()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(
		`INSERT INTO diagnostics (timestamp, operation, sql_text, params, kind, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.Operation, entry.SQL, encodeParams(entry.Params), entry.Kind, entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert diagnostic entry: %w", err)
	}

	return nil
}

// GetEntriesByOperation returns the entries recorded for operation.
func (b *SQLiteBackend) GetEntriesByOperation(operation string) ([]LogEntry, error) {
	return b.selectEntries(sqliteSelectColumns+` WHERE operation = ? ORDER BY id`, operation)
}

// GetEntriesByKind returns the entries of one failure category.
func (b *SQLiteBackend) GetEntriesByKind(kind string) ([]LogEntry, error) {
	return b.selectEntries(sqliteSelectColumns+` WHERE kind = ? ORDER BY id`, kind)
}

func (b *SQLiteBackend) selectEntries(query string, args ...any) ([]LogEntry, error) {
	db, err := b.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]LogEntry, 0)
	for rows.Next() {
		var entry LogEntry
		var paramsJSON string

		if err := rows.Scan(&entry.Timestamp, &entry.Operation, &entry.SQL, &paramsJSON, &entry.Kind, &entry.Error); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entry.Params = decodeParams([]byte(paramsJSON))

		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// encodeParams serializes params as a JSON array; nil becomes "[]".
func encodeParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeParams is the inverse of encodeParams. An empty array decodes to nil
// so entries without params round-trip unchanged.
func decodeParams(data []byte) []any {
	if len(data) == 0 || string(data) == "[]" {
		return nil
	}
	var params []any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil
	}
	return params
}
