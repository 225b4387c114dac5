package storage

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var rowRangePattern = regexp.MustCompile(`.*![A-Z]+(\d+):[A-Z]+(\d+)$`)

// sheetsSink appends canonical records as rows to a Google Sheet.
// Grounded on original_source/app/storage_service.py's SheetsStorageService:
// same column order, same process-local dedupe-by-file-hash set (the
// reference implementation's own docstring calls this "not durable" — kept
// faithfully, since the spec's storage sink contract only requires each
// sink to dedup on its own terms). Client construction follows
// google.golang.org/api/sheets/v4's documented option.WithCredentialsFile
// entrypoint, the sibling of the drive/v3 construction above.
type sheetsSink struct {
	service       *sheets.Service
	spreadsheetID string
	valueRange    string

	mu   sync.Mutex
	seen map[string]bool
}

func NewSheetsSink(ctx context.Context, serviceAccountFile, spreadsheetID, valueRange string) (Sink, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("storage: LEDGER_SPREADSHEET_ID is required for sheets storage")
	}
	if valueRange == "" {
		valueRange = "Ledger!A:Z"
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsFile(serviceAccountFile))
	if err != nil {
		return nil, fmt.Errorf("storage: create sheets service: %w", err)
	}

	return &sheetsSink{
		service:       service,
		spreadsheetID: spreadsheetID,
		valueRange:    valueRange,
		seen:          make(map[string]bool),
	}, nil
}

func (s *sheetsSink) Append(ctx context.Context, record map[string]any, metadata AppendMetadata) (AppendResult, error) {
	dedupeKey := metadata.FileHash

	s.mu.Lock()
	if dedupeKey != "" && s.seen[dedupeKey] {
		s.mu.Unlock()
		return AppendResult{Status: "skipped_duplicate", DedupeKey: dedupeKey}, nil
	}
	s.mu.Unlock()

	row := toRow(record, metadata)
	response, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.valueRange, &sheets.ValueRange{
		Values: [][]any{row},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return AppendResult{}, fmt.Errorf("storage: append sheet row: %w", err)
	}

	updatedRange := ""
	if response.Updates != nil {
		updatedRange = response.Updates.UpdatedRange
	}

	if dedupeKey != "" {
		s.mu.Lock()
		s.seen[dedupeKey] = true
		s.mu.Unlock()
	}

	rowOrRange := updatedRange
	if rowIndex := extractRowIndex(updatedRange); rowIndex >= 0 {
		rowOrRange = strconv.Itoa(rowIndex)
	}

	return AppendResult{
		Status:       "appended",
		RowOrRangeID: rowOrRange,
		DedupeKey:    dedupeKey,
	}, nil
}

func toRow(record map[string]any, metadata AppendMetadata) []any {
	return []any{
		metadata.DocumentID,
		metadata.SourceFileID,
		metadata.FileHash,
		record["document_type"],
		record["vendor_name"],
		record["invoice_number"],
		record["invoice_date"],
		record["currency"],
		record["subtotal"],
		record["tax_amount"],
		record["total_amount"],
		record["model_confidence"],
		record["validation_score"],
		metadata.Status,
		metadata.ProcessedAtUTC,
	}
}

// extractRowIndex parses the 1-based row number out of a sheets API
// "Sheet!A5:Z5"-shaped updated range, or -1 if it doesn't match.
func extractRowIndex(updatedRange string) int {
	match := rowRangePattern.FindStringSubmatch(updatedRange)
	if match == nil || match[1] != match[2] {
		return -1
	}
	row, err := strconv.Atoi(match[1])
	if err != nil {
		return -1
	}
	return row
}
