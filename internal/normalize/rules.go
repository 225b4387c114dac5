package normalize

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Rules configures the coercion behavior of an Engine. It is loaded once
// per process from NORMALIZATION_RULES_PATH and treated as an immutable
// snapshot for the life of the process — no hot reload.
type Rules struct {
	FieldAliases           map[string][]string `json:"field_aliases"`
	LineItemAliases        map[string][]string `json:"line_item_aliases"`
	PaymentMethodMap       map[string][]string `json:"payment_method_map"`
	LineItemIgnoreKeywords []string            `json:"line_item_ignore_keywords"`
	AmountTolerance        float64             `json:"amount_tolerance"`
	DefaultCurrency        string              `json:"default_currency"`
	DefaultDocumentType    string              `json:"default_document_type"`
	DefaultConfidence      float64             `json:"default_confidence"`
}

// LoadRules reads and unmarshals a Rules document from path, applying the
// same defaults the reference implementation uses for absent fields.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read normalization rules: %w", err)
	}

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse normalization rules: %w", err)
	}
	return applyDefaults(rules), nil
}

func applyDefaults(r Rules) Rules {
	if r.AmountTolerance == 0 {
		r.AmountTolerance = 0.01
	}
	if r.DefaultCurrency == "" {
		r.DefaultCurrency = "BDT"
	}
	r.DefaultCurrency = strings.ToUpper(r.DefaultCurrency)
	if r.DefaultDocumentType == "" {
		r.DefaultDocumentType = "invoice"
	}
	r.DefaultDocumentType = strings.ToLower(r.DefaultDocumentType)
	if r.DefaultConfidence == 0 {
		r.DefaultConfidence = 0.8
	}
	if r.FieldAliases == nil {
		r.FieldAliases = map[string][]string{}
	}
	if r.LineItemAliases == nil {
		r.LineItemAliases = map[string][]string{}
	}
	if r.PaymentMethodMap == nil {
		r.PaymentMethodMap = map[string][]string{}
	}
	lowered := make([]string, len(r.LineItemIgnoreKeywords))
	for i, kw := range r.LineItemIgnoreKeywords {
		lowered[i] = strings.ToLower(kw)
	}
	r.LineItemIgnoreKeywords = lowered
	return r
}
