package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// JSONBackend implements StorageBackend using a single JSON array file.
//
// Each append rewrites the file through a temporary file and rename, so a
// reader never sees a partially written log.
type JSONBackend struct {
	// LogFile is the absolute path to the JSON log file.
	LogFile string

	mu sync.Mutex
}

// NewJSONBackend creates a JSONBackend for the given file path.
// Parent directories are created on first append.
func NewJSONBackend(logFile string) *JSONBackend {
	return &JSONBackend{
		LogFile: logFile,
	}
}

// LoadHistory reads all entries from the JSON file.
//
// A missing, unreadable or corrupt file yields an empty slice so that a
// damaged log never blocks new diagnostics from being written.
func (b *JSONBackend) LoadHistory() ([]LogEntry, error) {
	data, err := os.ReadFile(b.LogFile)
	if err != nil {
		return make([]LogEntry, 0), nil
	}

	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
		return make([]LogEntry, 0), nil
	}

	return entries, nil
}

// AppendEntry appends entry and atomically replaces the file.
//
// Appends from goroutines sharing this backend are serialized.
func (b *JSONBackend) AppendEntry(entry LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(b.LogFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	history, err := b.LoadHistory()
	if err != nil {
		return err
	}
	history = append(history, entry)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmpFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return writeErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return closeErr
	}

	if err := os.Rename(tmpPath, b.LogFile); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return nil
}
