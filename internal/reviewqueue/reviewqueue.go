// Package reviewqueue persists records for documents routed to human
// review and, when a source artifact is supplied, moves it alongside them.
package reviewqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ledgerflow/ingestor/internal/model"
)

// Queue writes one JSON file per reviewed document into dir.
type Queue struct {
	dir string
}

// New returns a Queue rooted at dir, creating it if necessary.
func New(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create review queue directory: %w", err)
	}
	return &Queue{dir: dir}, nil
}

// Enqueue writes a ReviewRecord for documentID with the given reasons and
// optional metadata. If sourceFile is non-empty and exists, it is moved
// (not copied) into the queue directory and the record's
// SourceFileMovedTo is set to the new path. The record is always written,
// even when sourceFile is missing or does not exist.
func (q *Queue) Enqueue(documentID string, reasonCodes []string, sourceFile string, metadata map[string]any) (model.ReviewRecord, error) {
	record := model.ReviewRecord{
		DocumentID:  documentID,
		Status:      "REVIEW_REQUIRED",
		ReasonCodes: reasonCodes,
		CreatedAt:   time.Now().UTC(),
		Metadata:    metadata,
	}

	if sourceFile != "" {
		if _, err := os.Stat(sourceFile); err == nil {
			destination := filepath.Join(q.dir, filepath.Base(sourceFile))
			if err := os.Rename(sourceFile, destination); err != nil {
				return model.ReviewRecord{}, fmt.Errorf("move source file into review queue: %w", err)
			}
			record.SourceFileMovedTo = &destination
		} else if !os.IsNotExist(err) {
			return model.ReviewRecord{}, fmt.Errorf("stat source file: %w", err)
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return model.ReviewRecord{}, fmt.Errorf("marshal review record: %w", err)
	}

	recordPath := filepath.Join(q.dir, documentID+".json")
	if err := os.WriteFile(recordPath, data, 0o644); err != nil {
		return model.ReviewRecord{}, fmt.Errorf("write review record: %w", err)
	}
	return record, nil
}

// Count returns the number of pending review records (one ".json" file per
// document), for the monitoring API's backlog endpoints.
func (q *Queue) Count() (int, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return 0, fmt.Errorf("read review queue directory: %w", err)
	}

	total := 0
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			total++
		}
	}
	return total, nil
}
