package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JamesPrial/mysql-mcp/internal/pathutil"
)

// Backend names accepted by GetStorageBackend.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// DefaultDir is the directory, relative to the base directory, that holds
// the default log files.
const DefaultDir = ".mysql-mcp"

// Settings selects and locates the diagnostic log backend.
type Settings struct {
	// Backend is one of "json" (default), "sqlite", "postgres" or "none".
	Backend string

	// LogPath overrides the JSON log location (default <base>/.mysql-mcp/diagnostics.json).
	LogPath string

	// SQLitePath overrides the SQLite location (default <base>/.mysql-mcp/diagnostics.db).
	SQLitePath string

	// PostgresURL is required by the postgres backend.
	PostgresURL string
}

// GetStorageBackend returns the backend described by s.
//
// Custom file paths are resolved against baseDir and must stay inside it.
// An unknown backend name or an escaping path is an error.
func GetStorageBackend(baseDir string, s Settings) (StorageBackend, error) {
	backendType := strings.ToLower(strings.TrimSpace(s.Backend))
	if backendType == "" {
		backendType = BackendJSON
	}

	switch backendType {
	case BackendJSON:
		path, err := filePath(baseDir, s.LogPath, "diagnostics.json")
		if err != nil {
			return nil, fmt.Errorf("invalid JSON log path: %w", err)
		}
		return NewJSONBackend(path), nil

	case BackendSQLite:
		path, err := filePath(baseDir, s.SQLitePath, "diagnostics.db")
		if err != nil {
			return nil, fmt.Errorf("invalid SQLite database path: %w", err)
		}
		return NewSQLiteBackend(path)

	case BackendPostgres:
		connString := strings.TrimSpace(s.PostgresURL)
		if connString == "" {
			return nil, fmt.Errorf("postgres backend requires a connection URL")
		}
		return NewPostgresBackend(connString)

	case BackendNone:
		return DiscardBackend{}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %q. Expected 'json', 'sqlite', 'postgres' or 'none'", backendType)
	}
}

// filePath validates a custom path or falls back to <baseDir>/.mysql-mcp/<name>.
func filePath(baseDir, custom, name string) (string, error) {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return filepath.Join(baseDir, DefaultDir, name), nil
	}
	return pathutil.ResolveSafePath(baseDir, custom)
}
