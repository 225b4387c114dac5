package validate

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerflow/ingestor/internal/model"
)

// SchemaValidator runs struct-tag validation against canonical records.
// A single instance is safe for concurrent use and is typically
// constructed once per process.
type SchemaValidator struct {
	validate *validator.Validate
}

// NewSchemaValidator returns a SchemaValidator with the base validator
// configuration.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{validate: validator.New()}
}

// ErrSchemaInvalid wraps the underlying go-playground validation error.
// Callers route straight to the review queue with reason
// "schema_validation_failed" on this error.
var ErrSchemaInvalid = errors.New("canonical record failed schema validation")

// ValidateSchema checks record against its struct tags. A non-nil error
// always wraps ErrSchemaInvalid.
func (s *SchemaValidator) ValidateSchema(record model.CanonicalRecord) error {
	if err := s.validate.Struct(record); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaInvalid, err)
	}
	return nil
}
