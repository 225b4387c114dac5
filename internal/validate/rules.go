package validate

import (
	"math"
	"strings"

	"github.com/ledgerflow/ingestor/internal/model"
)

const businessRuleCount = 3

// EvaluateBusinessRules checks a canonical record against the three
// business rules: declared totals must reconcile, line items must sum to
// the subtotal, and invoices need an identifier. Each finding carries a
// severity; only "error" severity violations make a record invalid.
func EvaluateBusinessRules(record model.CanonicalRecord, amountTolerance float64) []model.Violation {
	var violations []model.Violation

	computedTotal := round2(record.Subtotal + record.TaxAmount)
	declaredTotal := round2(record.TotalAmount)
	if math.Abs(computedTotal-declaredTotal) > amountTolerance {
		violations = append(violations, model.Violation{
			Code:     "amount_mismatch",
			Severity: model.SeverityError,
			Message:  "subtotal + tax does not match total_amount",
			Context: map[string]any{
				"expected_total": computedTotal,
				"actual_total":   declaredTotal,
			},
		})
	}

	if len(record.LineItems) > 0 {
		var lineSum float64
		for _, item := range record.LineItems {
			lineSum += item.LineTotal
		}
		lineSum = round2(lineSum)
		subtotal := round2(record.Subtotal)

		switch {
		case lineSum <= amountTolerance && subtotal > amountTolerance:
			violations = append(violations, model.Violation{
				Code:     "line_items_incomplete",
				Severity: model.SeverityWarning,
				Message:  "line items present but amounts are missing or zero",
				Context: map[string]any{
					"expected_subtotal": lineSum,
					"actual_subtotal":   subtotal,
				},
			})
		case math.Abs(lineSum-subtotal) > amountTolerance:
			violations = append(violations, model.Violation{
				Code:     "line_item_sum_mismatch",
				Severity: model.SeverityError,
				Message:  "sum(line_items.line_total) does not match subtotal",
				Context: map[string]any{
					"expected_subtotal": lineSum,
					"actual_subtotal":   subtotal,
				},
			})
		}
	}

	if record.DocumentType == "invoice" && !hasIdentifier(record) {
		violations = append(violations, model.Violation{
			Code:     "missing_identifier",
			Severity: model.SeverityWarning,
			Message:  "invoice should include invoice_number or vendor_tax_id",
		})
	}

	return violations
}

func hasIdentifier(record model.CanonicalRecord) bool {
	if record.InvoiceNumber != nil && strings.TrimSpace(*record.InvoiceNumber) != "" {
		return true
	}
	if record.VendorTaxID != nil && strings.TrimSpace(*record.VendorTaxID) != "" {
		return true
	}
	return false
}

// Result is the outcome of ValidateAndScore.
type Result struct {
	Record          model.CanonicalRecord
	Violations      []model.Violation
	ValidationScore float64
	IsValid         bool
}

// ValidateAndScore evaluates business rules against record and derives a
// score in [0, 1]: one full rule's worth of credit is lost per violation,
// regardless of severity. A record is valid only when no violation carries
// error severity.
func ValidateAndScore(record model.CanonicalRecord, amountTolerance float64) Result {
	violations := EvaluateBusinessRules(record, amountTolerance)

	score := math.Max(0.0, 1.0-float64(len(violations))/float64(businessRuleCount))
	score = math.Round(score*10000) / 10000

	isValid := true
	for _, v := range violations {
		if v.Severity == model.SeverityError {
			isValid = false
			break
		}
	}

	record.ValidationScore = score

	return Result{
		Record:          record,
		Violations:      violations,
		ValidationScore: score,
		IsValid:         isValid,
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
