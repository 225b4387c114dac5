// Package pipeline drives the per-document algorithm: download, hash,
// claim, extract, normalize, validate, route, store or queue for review,
// archive, and always clean up the local temp file. It wires together
// every other internal package into the one sequence described for each
// inbox candidate.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ledgerflow/ingestor/internal/claimstore"
	"github.com/ledgerflow/ingestor/internal/deadletter"
	"github.com/ledgerflow/ingestor/internal/extractor"
	"github.com/ledgerflow/ingestor/internal/metrics"
	"github.com/ledgerflow/ingestor/internal/model"
	"github.com/ledgerflow/ingestor/internal/normalize"
	"github.com/ledgerflow/ingestor/internal/objectstore"
	"github.com/ledgerflow/ingestor/internal/reviewqueue"
	"github.com/ledgerflow/ingestor/internal/routing"
	"github.com/ledgerflow/ingestor/internal/statemachine"
	"github.com/ledgerflow/ingestor/internal/storage"
	"github.com/ledgerflow/ingestor/internal/validate"
)

// ExtractFunc resolves one document's raw extraction payload. It is a
// function, not the extractor.VisionClient interface directly, so tests
// can script arbitrary extractor.Extract outcomes without constructing a
// real ProviderConfig.
type ExtractFunc func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error)

// Config bundles every dependency a Pipeline needs to run one poll cycle.
type Config struct {
	Inbox              objectstore.Inbox
	Claims             *claimstore.Store
	Extract            ExtractFunc
	Normalizer         *normalize.Engine
	SchemaValidator    *validate.SchemaValidator
	AmountTolerance    float64
	ConfidenceThreshold float64
	ReviewScoreThreshold float64
	ReviewQueue        *reviewqueue.Queue
	DeadLetter         *deadletter.Log
	Sink               storage.Sink
	Metrics            *metrics.Collector
	WorkerID           string
	TmpDir             string
	ProviderHint       string
}

// Pipeline runs one poll cycle over an Inbox's candidate list.
type Pipeline struct {
	cfg Config
}

// New returns a Pipeline bound to cfg. cfg.TmpDir defaults to "tmp" if empty.
func New(cfg Config) *Pipeline {
	if cfg.TmpDir == "" {
		cfg.TmpDir = "tmp"
	}
	return &Pipeline{cfg: cfg}
}

// Outcome summarizes what happened to one candidate, for callers (tests,
// the replay-adjacent CLI commands) that want more detail than the
// aggregate metrics snapshot.
type Outcome struct {
	SourceID   string
	DocumentID string
	Status     string // stored, review_required, duplicate_skipped, failed
	Reason     string
}

// RunOnce lists the inbox and processes every candidate sequentially,
// returning one Outcome per candidate plus the cycle's metrics snapshot.
// Errors processing one candidate never abort the cycle; they are
// dead-lettered and recorded in that candidate's Outcome.
func (p *Pipeline) RunOnce(ctx context.Context) ([]Outcome, model.MetricsSnapshot, error) {
	candidates, err := p.cfg.Inbox.ListInbox(ctx)
	if err != nil {
		return nil, model.MetricsSnapshot{}, fmt.Errorf("list inbox: %w", err)
	}

	outcomes := make([]Outcome, 0, len(candidates))
	for _, candidate := range candidates {
		outcomes = append(outcomes, p.processOne(ctx, candidate))
	}

	snapshot := p.cfg.Metrics.Snapshot()
	return outcomes, snapshot, nil
}

// processOne runs steps 1-8 of the per-document algorithm for a single
// inbox candidate. It never panics past its own boundary: any unexpected
// failure is recovered, dead-lettered as pipeline_error, and reported as a
// failed Outcome rather than propagating into the poll loop.
func (p *Pipeline) processOne(ctx context.Context, candidate model.InboxCandidate) (outcome Outcome) {
	outcome = Outcome{SourceID: candidate.ID, Status: "failed"}
	start := time.Now()

	var localPath string
	var contentHash string
	defer func() {
		if r := recover(); r != nil {
			p.markFailed(ctx, candidate.ID, contentHash)
			p.recordDeadLetter(outcome.DocumentID, candidate.ID, contentHash, "FAILED", "pipeline_error", fmt.Sprintf("recovered panic: %v", r), "")
			outcome.Status = "failed"
			outcome.Reason = "pipeline_error"
		}
		if localPath != "" {
			_ = os.Remove(localPath)
		}
		p.cfg.Metrics.Increment(metrics.DocumentsProcessedTotal, 1)
		p.cfg.Metrics.ObserveLatency(time.Since(start).Milliseconds())
	}()

	localPath = filepath.Join(p.cfg.TmpDir, uuid.New().String()+"_"+candidate.Name)
	if err := os.MkdirAll(p.cfg.TmpDir, 0o755); err != nil {
		p.recordDeadLetter("", candidate.ID, "", "FAILED", "pipeline_error", "create tmp dir: "+err.Error(), "")
		outcome.Reason = "pipeline_error"
		return outcome
	}

	downloadedPath, err := p.cfg.Inbox.Download(ctx, candidate.ID, localPath)
	if err != nil {
		p.recordDeadLetter("", candidate.ID, "", "FAILED", "download_failed", err.Error(), "")
		outcome.Reason = "download_failed"
		return outcome
	}
	localPath = downloadedPath

	contentHash, err = hashFile(localPath)
	if err != nil {
		p.recordDeadLetter("", candidate.ID, "", "FAILED", "pipeline_error", "hash file: "+err.Error(), "")
		outcome.Reason = "pipeline_error"
		return outcome
	}

	claim, err := p.cfg.Claims.Claim(ctx, candidate.ID, contentHash, p.cfg.WorkerID)
	if err != nil {
		p.recordDeadLetter("", candidate.ID, contentHash, "FAILED", "pipeline_error", "claim: "+err.Error(), "")
		outcome.Reason = "pipeline_error"
		return outcome
	}
	if claim.Status != claimstore.StatusClaimed {
		p.cfg.Metrics.Increment(metrics.DocumentsDuplicateSkippedTotal, 1)
		outcome.Status = "duplicate_skipped"
		outcome.Reason = string(claim.Status)
		return outcome
	}

	documentID := uuid.New().String()
	outcome.DocumentID = documentID

	payload, err := p.cfg.Extract(ctx, localPath, p.cfg.ProviderHint)
	if err != nil {
		p.markFailed(ctx, candidate.ID, contentHash)
		p.recordDeadLetter(documentID, candidate.ID, contentHash, "FAILED", errorCode(err), err.Error(), "")
		outcome.Reason = errorCode(err)
		return outcome
	}

	record := p.cfg.Normalizer.Coerce(payload)

	if err := p.cfg.SchemaValidator.ValidateSchema(record); err != nil {
		p.sendToReview(ctx, documentID, candidate.ID, contentHash, localPath, []string{"schema_validation_failed"}, payload.Provider())
		outcome.Status = "review_required"
		outcome.Reason = "schema_validation_failed"
		return outcome
	}

	result := validate.ValidateAndScore(record, p.cfg.AmountTolerance)
	decision := routing.Decide(result.IsValid, result.Record.ModelConfidence, p.cfg.ConfidenceThreshold)
	if decision.Status == routing.StatusReviewRequired {
		p.sendToReview(ctx, documentID, candidate.ID, contentHash, localPath, decision.ReasonCodes, payload.Provider())
		outcome.Status = "review_required"
		outcome.Reason = decision.ReasonCodes[0]
		return outcome
	}

	needsReview := result.ValidationScore < p.cfg.ReviewScoreThreshold
	ledgerRecord := recordToMap(result.Record)
	ledgerRecord["needs_review"] = needsReview

	metadata := storage.AppendMetadata{
		DocumentID:     documentID,
		SourceFileID:   candidate.ID,
		FileHash:       contentHash,
		Status:         "STORED",
		ProcessedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := p.cfg.Sink.Append(ctx, ledgerRecord, metadata); err != nil {
		p.markFailed(ctx, candidate.ID, contentHash)
		p.recordDeadLetter(documentID, candidate.ID, contentHash, "FAILED", "storage_append_failed", err.Error(), payload.Provider())
		outcome.Reason = "storage_append_failed"
		return outcome
	}
	p.markStatus(ctx, candidate.ID, contentHash, statemachine.Stored)

	if _, err := p.cfg.Inbox.MoveToArchive(ctx, candidate.ID); err != nil {
		log.Warn().Err(err).Str("source_id", candidate.ID).Msg("archive move failed after successful store")
	}
	p.markStatus(ctx, candidate.ID, contentHash, statemachine.Archived)

	p.cfg.Metrics.Increment(metrics.DocumentsSuccessTotal, 1)
	outcome.Status = "stored"
	return outcome
}

func (p *Pipeline) sendToReview(ctx context.Context, documentID, sourceID, contentHash, localPath string, reasonCodes []string, provider string) {
	p.markStatus(ctx, sourceID, contentHash, statemachine.ReviewRequired)
	if _, err := p.cfg.ReviewQueue.Enqueue(documentID, reasonCodes, localPath, map[string]any{"source_id": sourceID}); err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("review queue enqueue failed")
	}
	p.recordDeadLetter(documentID, sourceID, contentHash, "REVIEW_REQUIRED", reasonCodes[0], "routed to human review", provider)
	p.cfg.Metrics.Increment(metrics.DocumentsReviewTotal, 1)
}

func (p *Pipeline) markFailed(ctx context.Context, sourceID, contentHash string) {
	p.markStatus(ctx, sourceID, contentHash, statemachine.Failed)
	p.cfg.Metrics.Increment(metrics.DocumentsFailedTotal, 1)
}

func (p *Pipeline) markStatus(ctx context.Context, sourceID, contentHash string, status statemachine.State) {
	if err := p.cfg.Claims.MarkStatus(ctx, sourceID, contentHash, status); err != nil {
		log.Error().Err(err).Str("source_id", sourceID).Str("status", string(status)).Msg("mark status failed")
	}
}

func (p *Pipeline) recordDeadLetter(documentID, sourceID, contentHash, status, code, message, provider string) {
	entry := model.DeadLetterEntry{
		DocumentID:   documentID,
		SourceID:     sourceID,
		ContentHash:  contentHash,
		Status:       status,
		ErrorCode:    code,
		ErrorMessage: message,
		UsedProvider: provider,
	}
	if err := p.cfg.DeadLetter.WriteFailure(entry); err != nil {
		log.Error().Err(err).Str("source_id", sourceID).Msg("dead letter write failed")
	}
}

// hashFile streams the file's content through sha256 1 MiB at a time, per
// the per-document algorithm's content-hash step.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 1024*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// errorCode extracts the extractor.Error code from err, or a generic
// fallback for any other failure shape.
func errorCode(err error) string {
	var extractorErr *extractor.Error
	if asExtractorError(err, &extractorErr) {
		return string(extractorErr.Code)
	}
	return "extraction_failed"
}

func asExtractorError(err error, target **extractor.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*extractor.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// recordToMap converts a validated CanonicalRecord into the loosely-typed
// map storage.Sink.Append expects, since Sink backends (Postgres, Sheets)
// work off column/field maps rather than the Go struct directly.
func recordToMap(record model.CanonicalRecord) map[string]any {
	lineItems := make([]map[string]any, 0, len(record.LineItems))
	for _, item := range record.LineItems {
		entry := map[string]any{
			"description": item.Description,
			"quantity":    item.Quantity,
			"unit_price":  item.UnitPrice,
			"line_total":  item.LineTotal,
		}
		if item.Category != nil {
			entry["category"] = *item.Category
		}
		lineItems = append(lineItems, entry)
	}

	return map[string]any{
		"document_type":    record.DocumentType,
		"vendor_name":      record.VendorName,
		"vendor_tax_id":    derefOrEmpty(record.VendorTaxID),
		"invoice_number":   derefOrEmpty(record.InvoiceNumber),
		"invoice_date":     record.InvoiceDate,
		"due_date":         derefOrEmpty(record.DueDate),
		"currency":         record.Currency,
		"subtotal":         record.Subtotal,
		"tax_amount":       record.TaxAmount,
		"total_amount":     record.TotalAmount,
		"payment_method":   record.PaymentMethod,
		"line_items":       lineItems,
		"model_confidence": record.ModelConfidence,
		"validation_score": record.ValidationScore,
	}
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
