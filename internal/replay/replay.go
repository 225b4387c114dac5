// Package replay re-queues dead-lettered documents for reprocessing by
// re-claiming them and writing an append-only audit trail.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ledgerflow/ingestor/internal/claimstore"
	"github.com/ledgerflow/ingestor/internal/model"
)

// Summary tallies the outcome of a replay pass.
type Summary struct {
	Queued           int `json:"queued"`
	SkippedProcessed int `json:"skipped_processed"`
	SkippedInvalid   int `json:"skipped_invalid"`
}

// DeadLetterSource lists dead-letter entries, optionally filtered by status.
type DeadLetterSource interface {
	ListFailures(status string) ([]model.DeadLetterEntry, error)
}

// Options configures a replay pass.
type Options struct {
	Status     string
	AuditPath  string
	OwnerID    string
}

// Run reads dead.ListFailures(opts.Status), attempts to re-claim each
// entry via store, and appends one audit line per entry to opts.AuditPath.
func Run(ctx context.Context, dead DeadLetterSource, store *claimstore.Store, opts Options) (Summary, error) {
	if opts.OwnerID == "" {
		opts.OwnerID = "replay-worker"
	}

	if err := os.MkdirAll(filepath.Dir(opts.AuditPath), 0o755); err != nil {
		return Summary{}, fmt.Errorf("create audit log directory: %w", err)
	}

	f, err := os.OpenFile(opts.AuditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Summary{}, fmt.Errorf("open replay audit log: %w", err)
	}
	defer f.Close()
	writer := bufio.NewWriter(f)
	defer writer.Flush()

	entries, err := dead.ListFailures(opts.Status)
	if err != nil {
		return Summary{}, fmt.Errorf("list dead letter entries: %w", err)
	}

	var summary Summary
	for _, entry := range entries {
		if entry.SourceID == "" || entry.ContentHash == "" || entry.DocumentID == "" {
			summary.SkippedInvalid++
			if err := writeAudit(writer, entry.DocumentID, opts.Status, "skipped_invalid", "missing source_id/content_hash/document_id"); err != nil {
				return summary, err
			}
			continue
		}

		result, err := store.Claim(ctx, entry.SourceID, entry.ContentHash, opts.OwnerID)
		if err != nil {
			return summary, fmt.Errorf("re-claim during replay: %w", err)
		}

		if result.Status == claimstore.StatusAlreadyProcessed {
			summary.SkippedProcessed++
			if err := writeAudit(writer, entry.DocumentID, opts.Status, "skipped_processed", "already_processed"); err != nil {
				return summary, err
			}
			continue
		}

		summary.Queued++
		reason := "claim_acquired"
		if result.Status == claimstore.StatusAlreadyClaimed {
			reason = "already_claimed"
		}
		if err := writeAudit(writer, entry.DocumentID, opts.Status, "queued_for_replay", reason); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

func writeAudit(w *bufio.Writer, documentID, status, outcome, reason string) error {
	event := model.ReplayAuditEvent{
		RecordedAt: time.Now().UTC(),
		DocumentID: documentID,
		Status:     status,
		Outcome:    outcome,
		Reason:     reason,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal replay audit event: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write replay audit event: %w", err)
	}
	return nil
}
