// Package storage appends validated canonical records to whichever durable
// ledger backend the deployment is configured for.
package storage

import "context"

// AppendMetadata carries the document identity fields a Sink needs for its
// own dedup and row bookkeeping; it rides alongside the canonical record
// but is not part of it.
type AppendMetadata struct {
	DocumentID     string
	SourceFileID   string
	FileHash       string
	Status         string
	ProcessedAtUTC string
}

// AppendResult reports whether the sink actually wrote a new row, or
// recognized the file hash as a duplicate and skipped.
type AppendResult struct {
	Status       string // "appended" or "skipped_duplicate"
	RowOrRangeID string
	DedupeKey    string
}

// Sink is responsible for its own dedup on metadata.FileHash.
type Sink interface {
	Append(ctx context.Context, record map[string]any, metadata AppendMetadata) (AppendResult, error)
}
