// Package deadletter is an append-only JSONL log of terminal document
// processing failures.
package deadletter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ledgerflow/ingestor/internal/model"
)

// Log appends DeadLetterEntry records to a JSONL file and reads them back,
// optionally filtered by status. Writers are serialized by mu so concurrent
// workers never interleave partial lines.
type Log struct {
	path string
	mu   sync.Mutex
}

// New returns a Log backed by path, creating its parent directory if needed.
func New(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dead letter directory: %w", err)
	}
	return &Log{path: path}, nil
}

// WriteFailure appends entry, stamping RecordedAt if it is zero.
func (l *Log) WriteFailure(entry model.DeadLetterEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dead letter log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append dead letter entry: %w", err)
	}
	return nil
}

// ListFailures returns every recorded entry, or only those matching status
// when status is non-empty. A missing log file yields an empty slice.
func (l *Log) ListFailures(status string) ([]model.DeadLetterEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return []model.DeadLetterEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dead letter log: %w", err)
	}
	defer f.Close()

	entries := []model.DeadLetterEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry model.DeadLetterEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("parse dead letter entry: %w", err)
		}
		if status != "" && entry.Status != status {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dead letter log: %w", err)
	}
	return entries, nil
}
