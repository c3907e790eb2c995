// Package auditlog provides the append-only sinks for escalation log
// records. Records are data, not diagnostics: the plan projector reads
// them back from the alert group to reconstruct history, and the JSONL
// file keeps a durable trail across restarts.
package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/OWNER/escalator/internal/alertgroup"
)

// FileName is the audit trail file within the data directory.
const FileName = "audit.jsonl"

// entry is one line of the audit file.
type entry struct {
	GroupID string               `json:"group_id"`
	Record  alertgroup.LogRecord `json:"record"`
}

// FileLog appends records to the alert group's in-memory history and
// mirrors them to a JSONL file, one record per line.
type FileLog struct {
	path string

	// mu serializes appends to the file across goroutines.
	mu sync.Mutex
}

// NewFileLog creates the data directory if needed and returns a file log
// writing to <dir>/audit.jsonl.
func NewFileLog(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return &FileLog{path: filepath.Join(dir, FileName)}, nil
}

// Append attaches the record to the group's history and appends it to
// the audit file. A failed file write is returned as an error so the
// caller does not persist a snapshot whose audit trail is incomplete.
func (l *FileLog) Append(g *alertgroup.AlertGroup, rec alertgroup.LogRecord) error {
	data, err := json.Marshal(entry{GroupID: g.ID, Record: rec})
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}

	g.LogRecords = append(g.LogRecords, rec)
	return nil
}

// MemoryLog attaches records to the group only. Used in tests and by
// read-only tooling that must never touch the durable trail.
type MemoryLog struct {
	// Records collects everything appended, across groups, in order.
	Records []alertgroup.LogRecord
}

// Append attaches the record to the group and remembers it.
func (l *MemoryLog) Append(g *alertgroup.AlertGroup, rec alertgroup.LogRecord) error {
	g.LogRecords = append(g.LogRecords, rec)
	l.Records = append(l.Records, rec)
	return nil
}
