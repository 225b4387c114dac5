// Package normalize coerces a raw, loosely-shaped extractor payload into a
// canonical record ready for schema validation. Every step below mirrors
// the reference coercion pipeline: pick aliased fields, recover amounts
// and dates defensively, normalize vendor/currency/payment-method/line
// items, then reconcile line items against the declared subtotal.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerflow/ingestor/internal/model"
)

// Engine applies a fixed Rules configuration to coerce raw extractor
// payloads into canonical records.
type Engine struct {
	rules Rules
}

// New returns an Engine bound to rules.
func New(rules Rules) *Engine {
	return &Engine{rules: rules}
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

var ocrDatePattern = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)

var ocrLinePattern = regexp.MustCompile(
	`^(?P<desc>.+?)\s+(?P<qty>\d+(?:\.\d+)?)\s+(?P<unit>\$?[\d,]+(?:\.\d+)?)\s+(?P<total>\$?[\d,]+(?:\.\d+)?)$`,
)

// ocrRelaxedLinePattern matches a description followed by a single amount;
// such a line becomes one item with quantity 1 and unit price = total.
var ocrRelaxedLinePattern = regexp.MustCompile(
	`^(?P<desc>.+?)\s+(?P<total>\d[\d,]*(?:\.\d+)?)$`,
)

var amountCleanupPattern = regexp.MustCompile(`[^0-9,.\-]`)

// rawItem is the loosely-typed shape of one line item as produced by an
// extractor, before coercion.
type rawItem map[string]any

// Coerce turns a raw extractor payload into a canonical record. The result
// is always structurally complete; invalid or missing data falls back to
// conservative defaults rather than failing outright — the downstream
// Validator is responsible for flagging anything still wrong.
func (e *Engine) Coerce(payload model.ExtractionPayload) model.CanonicalRecord {
	ocrText := payload.OCRText()

	total := e.safeFloat(e.pick(payload, "total_amount", 0.0), 0.0)
	subtotal := e.safeFloat(e.pick(payload, "subtotal_amount", total), total)
	taxAmount := e.safeFloat(e.pick(payload, "tax_amount", math.Max(total-subtotal, 0.0)), 0.0)

	confidence := e.safeFloat(e.pick(payload, "model_confidence", e.rules.DefaultConfidence), e.rules.DefaultConfidence)
	confidence = clamp(confidence, 0.0, 1.0)

	invoiceDate := e.normalizeDate(e.pick(payload, "invoice_date", nil))
	if invoiceDate == "" && ocrText != "" {
		invoiceDate = e.extractDateFromOCR(ocrText)
	}
	if invoiceDate == "" {
		invoiceDate = time.Now().UTC().Format("2006-01-02")
	}

	lineItems := e.normalizeLineItems(e.pick(payload, "line_items", nil), ocrText)
	lineItems = filterIgnored(lineItems, e.shouldIgnoreLineItem)
	reconcileTarget := subtotal
	if reconcileTarget <= 0 {
		reconcileTarget = total
	}
	lineItems = e.reconcileLineItems(lineItems, reconcileTarget)

	documentType := strings.ToLower(asString(e.pick(payload, "document_type", e.rules.DefaultDocumentType)))
	if documentType != "invoice" && documentType != "receipt" {
		documentType = "invoice"
	}

	currency := strings.ToUpper(asString(e.pick(payload, "currency", e.rules.DefaultCurrency)))
	if len(currency) != 3 {
		currency = e.rules.DefaultCurrency
	}

	record := model.CanonicalRecord{
		DocumentType:    documentType,
		VendorName:      e.normalizeVendorName(payload),
		InvoiceDate:     invoiceDate,
		Currency:        currency,
		Subtotal:        math.Max(subtotal, 0.0),
		TaxAmount:       math.Max(taxAmount, 0.0),
		TotalAmount:     math.Max(total, 0.0),
		PaymentMethod:   e.normalizePaymentMethod(e.pick(payload, "payment_method", nil)),
		LineItems:       toLineItems(lineItems),
		ModelConfidence: confidence,
		ValidationScore: confidence,
	}

	if vendorTaxID, ok := e.pick(payload, "vendor_tax_id", nil).(string); ok && vendorTaxID != "" {
		record.VendorTaxID = &vendorTaxID
	}
	if invoiceNumber, ok := e.pick(payload, "invoice_number", nil).(string); ok && invoiceNumber != "" {
		record.InvoiceNumber = &invoiceNumber
	}
	if dueDate := e.normalizeDate(e.pick(payload, "due_date", nil)); dueDate != "" {
		record.DueDate = &dueDate
	}

	return record
}

// pick resolves field by its configured aliases (defaulting to the field
// name itself), supporting dotted paths for nested lookups, and falls back
// to def when nothing resolves to a non-empty value.
func (e *Engine) pick(data map[string]any, field string, def any) any {
	aliases, ok := e.rules.FieldAliases[field]
	if !ok {
		aliases = []string{field}
	}
	for _, alias := range aliases {
		if strings.Contains(alias, ".") {
			if value := nestedGet(data, alias); !isEmpty(value) {
				return value
			}
			continue
		}
		if value, present := data[alias]; present && !isEmpty(value) {
			return value
		}
	}
	return def
}

func (e *Engine) pickItem(item rawItem, field string, def any) any {
	aliases, ok := e.rules.LineItemAliases[field]
	if !ok {
		aliases = []string{field}
	}
	for _, alias := range aliases {
		if value, present := item[alias]; present && !isEmpty(value) {
			return value
		}
	}
	return def
}

func nestedGet(data map[string]any, path string) any {
	var cur any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		value, present := m[key]
		if !present {
			return nil
		}
		cur = value
	}
	return cur
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}

func (e *Engine) safeFloat(value any, def float64) float64 {
	if isEmpty(value) {
		return def
	}
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}

	text := strings.TrimSpace(asString(value))
	text = amountCleanupPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, ",", "")
	if text == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return def
	}
	return parsed
}

func (e *Engine) normalizeDate(value any) string {
	if isEmpty(value) {
		return ""
	}
	text := strings.TrimSpace(asString(value))
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	return ""
}

func (e *Engine) extractDateFromOCR(text string) string {
	for _, candidate := range ocrDatePattern.FindAllString(text, -1) {
		if normalized := e.normalizeDate(candidate); normalized != "" {
			return normalized
		}
	}
	return ""
}

func (e *Engine) normalizePaymentMethod(value any) string {
	text := strings.ToLower(asString(value))
	for canonical, keywords := range e.rules.PaymentMethodMap {
		for _, keyword := range keywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				return canonical
			}
		}
	}
	return "unknown"
}

func (e *Engine) normalizeVendorName(payload map[string]any) string {
	value := e.pick(payload, "vendor_name", "Unknown Vendor")
	if nested, ok := value.(map[string]any); ok {
		if name, ok := nested["name"].(string); ok && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
		return "Unknown Vendor"
	}
	text := strings.TrimSpace(asString(value))
	if text == "" {
		return "Unknown Vendor"
	}
	return text
}

func (e *Engine) normalizeLineItems(raw any, ocrText string) []rawItem {
	var items []rawItem

	if list, ok := raw.([]any); ok {
		for _, entry := range list {
			itemMap, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			item := rawItem(itemMap)
			desc := strings.TrimSpace(asString(e.pickItem(item, "description", "item")))
			qty := e.safeFloat(e.pickItem(item, "quantity", 1.0), 1.0)
			unit := e.safeFloat(e.pickItem(item, "unit_price", 0.0), 0.0)
			total := e.safeFloat(e.pickItem(item, "line_total", qty*unit), qty*unit)

			normalized := rawItem{
				"description": desc,
				"quantity":    math.Max(qty, 0.0001),
				"unit_price":  math.Max(unit, 0.0),
				"line_total":  math.Max(total, 0.0),
			}
			if category := e.pickItem(item, "category", nil); category != nil {
				normalized["category"] = category
			}
			items = append(items, normalized)
		}
	}

	hasPositiveTotal := false
	for _, item := range items {
		if item["line_total"].(float64) > 0 {
			hasPositiveTotal = true
			break
		}
	}
	if len(items) > 0 && hasPositiveTotal {
		return items
	}

	recovered := e.recoverLineItemsFromOCR(ocrText)
	if len(recovered) > 0 {
		return recovered
	}
	return items
}

func (e *Engine) shouldIgnoreLineItem(description string) bool {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		return true
	}
	for _, keyword := range e.rules.LineItemIgnoreKeywords {
		if strings.Contains(desc, keyword) {
			return true
		}
	}
	return false
}

func filterIgnored(items []rawItem, shouldIgnore func(string) bool) []rawItem {
	kept := make([]rawItem, 0, len(items))
	for _, item := range items {
		if shouldIgnore(asString(item["description"])) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// reconcileLineItems drops items via subset-sum when the declared items
// overshoot targetTotal by more than the configured tolerance, choosing the
// subset whose sum lands closest to the target without exceeding it by more
// than the tolerance. Items
// are left untouched when there's nothing to reconcile, the sum already
// undershoots, or fewer than two items are present.
// maxReconcileItems and maxReconcileCents bound the subset-sum search
// space; adversarial inputs beyond either cap fall back to "keep items
// unchanged" rather than attempt an intractable DP.
const (
	maxReconcileItems = 50
	maxReconcileCents = 10_000_000
)

func (e *Engine) reconcileLineItems(items []rawItem, targetTotal float64) []rawItem {
	if targetTotal <= 0 || len(items) <= 1 {
		return items
	}
	if len(items) > maxReconcileItems {
		return items
	}

	tolCents := int64(math.Round(e.rules.AmountTolerance * 100))
	targetCents := int64(math.Round(targetTotal * 100))
	if targetCents > maxReconcileCents {
		return items
	}

	cents := make([]int64, len(items))
	var sumCents int64
	for i, item := range items {
		c := int64(math.Round(e.safeFloat(item["line_total"], 0.0) * 100))
		cents[i] = c
		sumCents += c
	}

	if diff := sumCents - targetCents; diff >= -tolCents && diff <= tolCents {
		return items
	}
	if sumCents < targetCents {
		return items
	}

	reachable := map[int64][]int{0: {}}
	for idx, value := range cents {
		if value <= 0 {
			continue
		}
		updates := map[int64][]int{}
		for currentSum, picked := range reachable {
			newSum := currentSum + value
			if newSum > targetCents+tolCents {
				continue
			}
			if _, exists := reachable[newSum]; exists {
				continue
			}
			if _, exists := updates[newSum]; exists {
				continue
			}
			combo := make([]int, len(picked)+1)
			copy(combo, picked)
			combo[len(picked)] = idx
			updates[newSum] = combo
		}
		for sum, combo := range updates {
			reachable[sum] = combo
		}
	}

	var bestSum int64
	for sum := range reachable {
		if sum > bestSum {
			bestSum = sum
		}
	}
	if bestSum == 0 {
		return items
	}

	chosen := append([]int(nil), reachable[bestSum]...)
	sort.Ints(chosen)

	reconciled := make([]rawItem, 0, len(chosen))
	for _, idx := range chosen {
		reconciled = append(reconciled, items[idx])
	}
	if len(reconciled) == 0 {
		return items
	}
	return reconciled
}

func (e *Engine) recoverLineItemsFromOCR(text string) []rawItem {
	var rows []rawItem
	for _, line := range strings.Split(text, "\n") {
		compact := strings.TrimSpace(line)
		if len(compact) < 8 {
			continue
		}
		pattern := ocrLinePattern
		match := pattern.FindStringSubmatch(compact)
		if match == nil {
			pattern = ocrRelaxedLinePattern
			match = pattern.FindStringSubmatch(compact)
		}
		if match == nil {
			continue
		}
		groups := namedGroups(pattern, match)

		desc := strings.TrimSpace(groups["desc"])
		qty := e.safeFloat(groups["qty"], 1.0)
		unit := e.safeFloat(groups["unit"], 0.0)
		total := e.safeFloat(groups["total"], qty*unit)
		if groups["unit"] == "" {
			unit = total
		}
		if total <= 0 {
			continue
		}
		if e.shouldIgnoreLineItem(desc) {
			continue
		}
		rows = append(rows, rawItem{
			"description": desc,
			"quantity":    math.Max(qty, 0.0001),
			"unit_price":  math.Max(unit, 0.0),
			"line_total":  math.Max(total, 0.0),
		})
	}
	return rows
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		groups[name] = match[i]
	}
	return groups
}

func toLineItems(items []rawItem) []model.LineItem {
	result := make([]model.LineItem, 0, len(items))
	for _, item := range items {
		li := model.LineItem{
			Description: asString(item["description"]),
			Quantity:    item["quantity"].(float64),
			UnitPrice:   item["unit_price"].(float64),
			LineTotal:   item["line_total"].(float64),
		}
		if category, ok := item["category"].(string); ok && category != "" {
			li.Category = &category
		}
		result = append(result, li)
	}
	return result
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
