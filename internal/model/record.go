// Package model holds the canonical data shapes that flow through the
// ingestion pipeline once a document has left the extractor's raw JSON
// world and entered the normalized/validated world.
package model

import "time"

// LineItem is one reconciled row of a CanonicalRecord.
type LineItem struct {
	Description string   `json:"description" validate:"required"`
	Quantity    float64  `json:"quantity" validate:"gt=0"`
	UnitPrice   float64  `json:"unit_price" validate:"gte=0"`
	LineTotal   float64  `json:"line_total" validate:"gte=0"`
	Category    *string  `json:"category,omitempty"`
}

// CanonicalRecord is the normalized, schema-validated output of one
// extracted document. It is the shape NormalizationEngine.Coerce produces
// and Validator.ValidateAndScore checks.
type CanonicalRecord struct {
	DocumentType     string     `json:"document_type" validate:"required,oneof=invoice receipt"`
	VendorName       string     `json:"vendor_name" validate:"required"`
	VendorTaxID      *string    `json:"vendor_tax_id,omitempty"`
	InvoiceNumber    *string    `json:"invoice_number,omitempty"`
	InvoiceDate      string     `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate          *string    `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Currency         string     `json:"currency" validate:"required,len=3"`
	Subtotal         float64    `json:"subtotal" validate:"gte=0"`
	TaxAmount        float64    `json:"tax_amount" validate:"gte=0"`
	TotalAmount      float64    `json:"total_amount" validate:"gte=0"`
	PaymentMethod    string     `json:"payment_method" validate:"required,oneof=card cash bank unknown"`
	LineItems        []LineItem `json:"line_items" validate:"dive"`
	ModelConfidence  float64    `json:"model_confidence" validate:"gte=0,lte=1"`
	ValidationScore  float64    `json:"validation_score" validate:"gte=0,lte=1"`
}

// ExtractionPayload is the transient, untyped mapping produced by the
// Extractor before normalization. Model output is intrinsically untyped,
// so it stays a bag of JSON values until NormalizationEngine.Coerce turns
// it into a CanonicalRecord-shaped map.
type ExtractionPayload map[string]any

// OCRText returns the payload's "_ocr_text" key, or "" if absent.
func (p ExtractionPayload) OCRText() string {
	v, _ := p["_ocr_text"].(string)
	return v
}

// Provider returns the payload's "_provider" key, or "" if absent.
func (p ExtractionPayload) Provider() string {
	v, _ := p["_provider"].(string)
	return v
}

// Severity of a business-rule Violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation describes one business-rule or schema finding against a
// CanonicalRecord.
type Violation struct {
	Code    string         `json:"code"`
	Severity Severity      `json:"severity"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// DeadLetterEntry is one terminal-failure record appended to the
// dead-letter log.
type DeadLetterEntry struct {
	RecordedAt   time.Time `json:"recorded_at_utc"`
	DocumentID   string    `json:"document_id"`
	SourceID     string    `json:"source_id"`
	ContentHash  string    `json:"content_hash"`
	Status       string    `json:"status"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	UsedProvider string    `json:"used_provider,omitempty"`
}

// ReviewRecord is one human-review-queue entry.
type ReviewRecord struct {
	DocumentID          string         `json:"document_id"`
	Status              string         `json:"status"`
	ReasonCodes         []string       `json:"reason_codes"`
	CreatedAt           time.Time      `json:"created_at_utc"`
	SourceFileMovedTo   *string        `json:"source_file_moved_to,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// ReplayAuditEvent is one line appended to the replay audit log.
type ReplayAuditEvent struct {
	RecordedAt time.Time `json:"recorded_at_utc"`
	DocumentID string    `json:"document_id"`
	Status     string    `json:"status"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
}

// MetricsSnapshot is a point-in-time read of MetricsCollector's counters
// and latency samples.
type MetricsSnapshot struct {
	ThroughputTotal      int64 `json:"throughput_total"`
	SuccessTotal         int64 `json:"success_total"`
	ReviewTotal          int64 `json:"review_total"`
	FailureTotal         int64 `json:"failure_total"`
	DuplicateSkipsTotal  int64 `json:"duplicate_skips_total"`
	LatencyP95Ms         int64 `json:"latency_p95_ms"`
}

// InboxCandidate is one file the object-storage inbox lister returns.
type InboxCandidate struct {
	ID         string
	Name       string
	MimeType   string
	Size       int64
	ModifiedAt *time.Time
}
