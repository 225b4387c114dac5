package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink appends JSON-encoded events, one per line, stamping each with a
// recorded-at timestamp.
type Sink struct {
	path string
	mu   sync.Mutex
}

// NewSink returns a Sink backed by path, creating its parent directory.
func NewSink(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metrics sink directory: %w", err)
	}
	return &Sink{path: path}, nil
}

// Emit appends event with a "recorded_at_utc" field merged in.
func (s *Sink) Emit(event map[string]any) error {
	payload := make(map[string]any, len(event)+1)
	for k, v := range event {
		payload[k] = v
	}
	payload["recorded_at_utc"] = time.Now().UTC().Format(time.RFC3339)

	line, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal metrics event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open metrics sink: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append metrics event: %w", err)
	}
	return nil
}
