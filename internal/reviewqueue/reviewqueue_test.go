package reviewqueue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue_WritesRecordWithoutSourceFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "review")
	q, err := New(dir)
	require.NoError(t, err)

	record, err := q.Enqueue("doc-1", []string{"low_confidence"}, "", nil)
	require.NoError(t, err)
	assert.Nil(t, record.SourceFileMovedTo)

	raw, err := os.ReadFile(filepath.Join(dir, "doc-1.json"))
	require.NoError(t, err)

	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "REVIEW_REQUIRED", onDisk["status"])
	assert.Equal(t, []any{"low_confidence"}, onDisk["reason_codes"])
}

func TestEnqueue_MovesSourceFile(t *testing.T) {
	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "invoice.pdf")
	require.NoError(t, os.WriteFile(srcFile, []byte("pdf-bytes"), 0o644))

	dir := filepath.Join(t.TempDir(), "review")
	q, err := New(dir)
	require.NoError(t, err)

	record, err := q.Enqueue("doc-2", []string{"validation_failed"}, srcFile, map[string]any{"vendor": "acme"})
	require.NoError(t, err)

	require.NotNil(t, record.SourceFileMovedTo)
	assert.Equal(t, filepath.Join(dir, "invoice.pdf"), *record.SourceFileMovedTo)

	_, statErr := os.Stat(srcFile)
	assert.True(t, os.IsNotExist(statErr))

	_, statErr = os.Stat(*record.SourceFileMovedTo)
	assert.NoError(t, statErr)
}

func TestEnqueue_MissingSourceFileStillWritesRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "review")
	q, err := New(dir)
	require.NoError(t, err)

	record, err := q.Enqueue("doc-3", []string{"schema_validation_failed"}, "/does/not/exist.pdf", nil)
	require.NoError(t, err)
	assert.Nil(t, record.SourceFileMovedTo)

	_, statErr := os.Stat(filepath.Join(dir, "doc-3.json"))
	assert.NoError(t, statErr)
}
