// Package clientlog persists error reports sent by the browser front end.
// Reports are stored as append-only JSON lines in a local file so they can
// be shipped by whatever log collector runs next to the server.
package clientlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record is a single client error entry written to the file store.
type Record struct {
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Message       string            `json:"message"`
	Attrs         map[string]string `json:"attrs,omitempty"`
}

// FileStore persists client errors as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the file the store appends to.
func (fs *FileStore) Path() string { return fs.path }

// Append writes rec as one line. A zero Timestamp is set to the current time.
func (fs *FileStore) Append(rec Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = fs.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("clientlog: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("clientlog: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("clientlog: write: %w", err)
	}
	return nil
}
