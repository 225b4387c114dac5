package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/ingestor/internal/claimstore"
	"github.com/ledgerflow/ingestor/internal/deadletter"
	"github.com/ledgerflow/ingestor/internal/metrics"
	"github.com/ledgerflow/ingestor/internal/model"
	"github.com/ledgerflow/ingestor/internal/normalize"
	"github.com/ledgerflow/ingestor/internal/reviewqueue"
	"github.com/ledgerflow/ingestor/internal/storage"
	"github.com/ledgerflow/ingestor/internal/validate"
)

type fakeInbox struct {
	candidates []model.InboxCandidate
	sourceFile string
	archived   []string
}

func (f *fakeInbox) ListInbox(ctx context.Context) ([]model.InboxCandidate, error) {
	return f.candidates, nil
}

func (f *fakeInbox) Download(ctx context.Context, id, outPath string) (string, error) {
	data, err := os.ReadFile(f.sourceFile)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}

func (f *fakeInbox) MoveToArchive(ctx context.Context, id string) (string, error) {
	f.archived = append(f.archived, id)
	return "archive/" + id, nil
}

type fakeSink struct {
	appended []map[string]any
	fail     bool
}

func (f *fakeSink) Append(ctx context.Context, record map[string]any, metadata storage.AppendMetadata) (storage.AppendResult, error) {
	if f.fail {
		return storage.AppendResult{}, assert.AnError
	}
	f.appended = append(f.appended, record)
	return storage.AppendResult{Status: "appended", RowOrRangeID: "1"}, nil
}

func newTestPipeline(t *testing.T, inbox *fakeInbox, sink *fakeSink, extractFn ExtractFunc) (*Pipeline, *deadletter.Log, *reviewqueue.Queue, *claimstore.Store) {
	t.Helper()
	dir := t.TempDir()

	claims, err := claimstore.New(claimstore.Config{DBPath: filepath.Join(dir, "claims.db")})
	require.NoError(t, err)
	t.Cleanup(func() { claims.Close() })

	dl, err := deadletter.New(filepath.Join(dir, "dead_letter.jsonl"))
	require.NoError(t, err)

	rq, err := reviewqueue.New(filepath.Join(dir, "review_queue"))
	require.NoError(t, err)

	engine := normalize.New(normalize.Rules{})

	p := New(Config{
		Inbox:                 inbox,
		Claims:                claims,
		Extract:               extractFn,
		Normalizer:            engine,
		SchemaValidator:       validate.NewSchemaValidator(),
		AmountTolerance:       0.01,
		ConfidenceThreshold:   0.5,
		ReviewScoreThreshold:  0.6,
		ReviewQueue:           rq,
		DeadLetter:            dl,
		Sink:                  sink,
		Metrics:               metrics.NewCollector(nil),
		WorkerID:              "test-worker",
		TmpDir:                filepath.Join(dir, "tmp"),
	})
	return p, dl, rq, claims
}

func validPayload(confidence float64) model.ExtractionPayload {
	return model.ExtractionPayload{
		"document_type":    "invoice",
		"vendor_name":      "Acme Corp",
		"invoice_number":   "INV-1",
		"invoice_date":     "2026-01-15",
		"currency":         "USD",
		"subtotal_amount":  100.0,
		"tax_amount":       10.0,
		"total_amount":     110.0,
		"payment_method":   "card",
		"model_confidence": confidence,
		"line_items": []any{
			map[string]any{"description": "widget", "quantity": 1.0, "unit_price": 100.0, "line_total": 100.0},
		},
	}
}

func writeTempSourceFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake-image-bytes"), 0o644))
	return path
}

func TestPipeline_SuccessfulStoreAndArchive(t *testing.T) {
	inbox := &fakeInbox{
		candidates: []model.InboxCandidate{{ID: "doc-1", Name: "invoice.jpg"}},
		sourceFile: writeTempSourceFile(t),
	}
	sink := &fakeSink{}
	p, _, _, _ := newTestPipeline(t, inbox, sink, func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error) {
		return validPayload(0.9), nil
	})

	outcomes, snapshot, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "stored", outcomes[0].Status)
	assert.Len(t, sink.appended, 1)
	assert.Equal(t, []string{"doc-1"}, inbox.archived)
	assert.Equal(t, int64(1), snapshot.SuccessTotal)
}

func TestPipeline_DuplicateSkip(t *testing.T) {
	sourceFile := writeTempSourceFile(t)
	inbox := &fakeInbox{
		candidates: []model.InboxCandidate{{ID: "doc-1", Name: "invoice.jpg"}},
		sourceFile: sourceFile,
	}
	sink := &fakeSink{}
	calls := 0
	p, _, _, claims := newTestPipeline(t, inbox, sink, func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error) {
		calls++
		return validPayload(0.9), nil
	})

	data, err := os.ReadFile(sourceFile)
	require.NoError(t, err)
	hashed, err := hashFile(sourceFile)
	require.NoError(t, err)
	_ = data

	_, claimErr := claims.Claim(context.Background(), "doc-1", hashed, "other-worker")
	require.NoError(t, claimErr)
	require.NoError(t, claims.MarkStatus(context.Background(), "doc-1", hashed, "STORED"))

	outcomes, _, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "duplicate_skipped", outcomes[0].Status)
	assert.Equal(t, 0, calls)
	assert.Empty(t, sink.appended)
}

func TestPipeline_SchemaValidationFailureRoutesToReview(t *testing.T) {
	inbox := &fakeInbox{
		candidates: []model.InboxCandidate{{ID: "doc-1", Name: "invoice.jpg"}},
		sourceFile: writeTempSourceFile(t),
	}
	sink := &fakeSink{}
	p, dl, rq, _ := newTestPipeline(t, inbox, sink, func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error) {
		// The test rules carry no default currency, so a payload without
		// a currency normalizes to an empty one, which the schema rejects.
		payload := validPayload(0.9)
		delete(payload, "currency")
		return payload, nil
	})

	outcomes, _, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "review_required", outcomes[0].Status)
	assert.Equal(t, "schema_validation_failed", outcomes[0].Reason)

	failures, err := dl.ListFailures("")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "schema_validation_failed", failures[0].ErrorCode)
	_ = rq
}

func TestPipeline_BusinessRuleFailureRoutesToReview(t *testing.T) {
	inbox := &fakeInbox{
		candidates: []model.InboxCandidate{{ID: "doc-1", Name: "invoice.jpg"}},
		sourceFile: writeTempSourceFile(t),
	}
	sink := &fakeSink{}
	p, _, _, _ := newTestPipeline(t, inbox, sink, func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error) {
		payload := validPayload(0.9)
		payload["total_amount"] = 999.0
		return payload, nil
	})

	outcomes, _, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "review_required", outcomes[0].Status)
	assert.Equal(t, "validation_failed", outcomes[0].Reason)
}

func TestPipeline_LowConfidenceRoutesToReview(t *testing.T) {
	inbox := &fakeInbox{
		candidates: []model.InboxCandidate{{ID: "doc-1", Name: "invoice.jpg"}},
		sourceFile: writeTempSourceFile(t),
	}
	sink := &fakeSink{}
	p, _, _, _ := newTestPipeline(t, inbox, sink, func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error) {
		return validPayload(0.1), nil
	})

	outcomes, _, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "review_required", outcomes[0].Status)
	assert.Equal(t, "low_confidence", outcomes[0].Reason)
}

func TestPipeline_ExtractionErrorDeadLetters(t *testing.T) {
	inbox := &fakeInbox{
		candidates: []model.InboxCandidate{{ID: "doc-1", Name: "invoice.jpg"}},
		sourceFile: writeTempSourceFile(t),
	}
	sink := &fakeSink{}
	p, dl, _, _ := newTestPipeline(t, inbox, sink, func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error) {
		return nil, assert.AnError
	})

	outcomes, _, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "failed", outcomes[0].Status)

	failures, err := dl.ListFailures("")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "FAILED", failures[0].Status)
}

func TestPipeline_StorageFailureDeadLetters(t *testing.T) {
	inbox := &fakeInbox{
		candidates: []model.InboxCandidate{{ID: "doc-1", Name: "invoice.jpg"}},
		sourceFile: writeTempSourceFile(t),
	}
	sink := &fakeSink{fail: true}
	p, dl, _, _ := newTestPipeline(t, inbox, sink, func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error) {
		return validPayload(0.9), nil
	})

	outcomes, _, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "failed", outcomes[0].Status)
	assert.Equal(t, "storage_append_failed", outcomes[0].Reason)

	failures, err := dl.ListFailures("")
	require.NoError(t, err)
	require.Len(t, failures, 1)
}

func TestHashFile_ProducesStableSHA256(t *testing.T) {
	path := writeTempSourceFile(t)
	first, err := hashFile(path)
	require.NoError(t, err)
	second, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}
