// Package storage persists the diagnostic log of failed operations.
//
// Every operation that fails is recorded with the statement text and
// parameters that triggered it, so an operator can see what an agent tried
// to run. Entries are append-only. All backends implement StorageBackend;
// backends that can filter server-side also implement
// QueryableStorageBackend.
package storage

import "time"

// LogEntry is one failed operation.
type LogEntry struct {
	// Timestamp is an ISO 8601 UTC timestamp with millisecond precision and Z suffix.
	Timestamp string `json:"timestamp"`

	// Operation is the tool name that failed (e.g., "query", "describe_table").
	Operation string `json:"operation"`

	// SQL is the statement that was sent, or would have been sent, to the server.
	SQL string `json:"sql,omitempty"`

	// Params are the positional parameters bound to SQL.
	Params []any `json:"params,omitempty"`

	// Kind is the failure category (e.g., "InternalError").
	Kind string `json:"kind"`

	// Error is the raw error message, including any driver detail.
	Error string `json:"error"`
}

// UTCISOTimestamp returns the current UTC time as ISO 8601 with millisecond precision.
//
// Format: "2006-01-02T15:04:05.000Z"
func UTCISOTimestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000") + "Z"
}

// NewLogEntry stamps a failure with the current time.
func NewLogEntry(operation, sql string, params []any, kind, errMsg string) LogEntry {
	return LogEntry{
		Timestamp: UTCISOTimestamp(),
		Operation: operation,
		SQL:       sql,
		Params:    params,
		Kind:      kind,
		Error:     errMsg,
	}
}

// StorageBackend defines the contract for diagnostic log persistence.
type StorageBackend interface {
	// LoadHistory returns every entry in the order it was appended.
	// An empty log yields an empty, non-nil slice.
	LoadHistory() ([]LogEntry, error)

	// AppendEntry atomically appends entry to the log.
	AppendEntry(entry LogEntry) error
}

// QueryableStorageBackend adds server-side filtering.
//
// The SQLite and Postgres backends implement it; the JSON backend does not.
type QueryableStorageBackend interface {
	StorageBackend

	// GetEntriesByOperation returns the entries recorded for one operation,
	// oldest first.
	GetEntriesByOperation(operation string) ([]LogEntry, error)

	// GetEntriesByKind returns the entries of one failure category, oldest first.
	GetEntriesByKind(kind string) ([]LogEntry, error)
}

// DiscardBackend drops every entry. It is used when persistence is disabled.
type DiscardBackend struct{}

// LoadHistory always returns an empty slice.
func (DiscardBackend) LoadHistory() ([]LogEntry, error) { return make([]LogEntry, 0), nil }

// AppendEntry ignores entry.
func (DiscardBackend) AppendEntry(LogEntry) error { return nil }

// FilterByOperation selects entries for one operation from an in-memory history.
//
// It backs operation filtering for backends that are not queryable.
func FilterByOperation(entries []LogEntry, operation string) []LogEntry {
	result := make([]LogEntry, 0)
	for _, e := range entries {
		if e.Operation == operation {
			result = append(result, e)
		}
	}
	return result
}

// FilterByKind selects entries of one failure category from an in-memory history.
func FilterByKind(entries []LogEntry, kind string) []LogEntry {
	result := make([]LogEntry, 0)
	for _, e := range entries {
		if e.Kind == kind {
			result = append(result, e)
		}
	}
	return result
}

// Select returns the entries matching operation and kind; an empty filter
// matches everything. Queryable backends filter server-side.
func Select(b StorageBackend, operation, kind string) ([]LogEntry, error) {
	var entries []LogEntry
	var err error

	q, queryable := b.(QueryableStorageBackend)
	switch {
	case queryable && operation != "":
		entries, err = q.GetEntriesByOperation(operation)
		operation = ""
	case queryable && kind != "":
		entries, err = q.GetEntriesByKind(kind)
		kind = ""
	default:
		entries, err = b.LoadHistory()
	}
	if err != nil {
		return nil, err
	}

	if operation != "" {
		entries = FilterByOperation(entries, operation)
	}
	if kind != "" {
		entries = FilterByKind(entries, kind)
	}
	return entries, nil
}
