package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/ingestor/internal/claimstore"
	"github.com/ledgerflow/ingestor/internal/model"
	"github.com/ledgerflow/ingestor/internal/statemachine"
)

type fakeDeadLetterSource struct {
	entries []model.DeadLetterEntry
}

func (f *fakeDeadLetterSource) ListFailures(status string) ([]model.DeadLetterEntry, error) {
	return f.entries, nil
}

func newTestClaimStore(t *testing.T) *claimstore.Store {
	t.Helper()
	store, err := claimstore.New(claimstore.Config{DBPath: filepath.Join(t.TempDir(), "claims.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRun_QueuesFailedAndSkipsProcessed(t *testing.T) {
	ctx := context.Background()
	store := newTestClaimStore(t)

	// doc-failed was claimed then marked FAILED: eligible for re-claim.
	_, err := store.Claim(ctx, "file-failed", "hash-failed", "worker-a")
	require.NoError(t, err)
	require.NoError(t, store.MarkStatus(ctx, "file-failed", "hash-failed", statemachine.Failed))

	// doc-stored was claimed then marked STORED: terminal, skip.
	_, err = store.Claim(ctx, "file-stored", "hash-stored", "worker-a")
	require.NoError(t, err)
	require.NoError(t, store.MarkStatus(ctx, "file-stored", "hash-stored", statemachine.Stored))

	dead := &fakeDeadLetterSource{entries: []model.DeadLetterEntry{
		{DocumentID: "doc-failed", SourceID: "file-failed", ContentHash: "hash-failed", Status: "FAILED"},
		{DocumentID: "doc-stored", SourceID: "file-stored", ContentHash: "hash-stored", Status: "STORED"},
	}}

	auditPath := filepath.Join(t.TempDir(), "replay_audit.jsonl")
	summary, err := Run(ctx, dead, store, Options{Status: "FAILED", AuditPath: auditPath})
	require.NoError(t, err)

	assert.Equal(t, Summary{Queued: 1, SkippedProcessed: 1, SkippedInvalid: 0}, summary)

	lines := readLines(t, auditPath)
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "queued_for_replay", first["outcome"])
	assert.Equal(t, "skipped_processed", second["outcome"])
}

func TestRun_SkipsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestClaimStore(t)

	dead := &fakeDeadLetterSource{entries: []model.DeadLetterEntry{
		{DocumentID: "", SourceID: "", ContentHash: "", Status: "FAILED"},
	}}

	auditPath := filepath.Join(t.TempDir(), "replay_audit.jsonl")
	summary, err := Run(ctx, dead, store, Options{Status: "FAILED", AuditPath: auditPath})
	require.NoError(t, err)
	assert.Equal(t, Summary{Queued: 0, SkippedProcessed: 0, SkippedInvalid: 1}, summary)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if scanner.Text() != "" {
			lines = append(lines, scanner.Text())
		}
	}
	require.NoError(t, scanner.Err())
	return lines
}
