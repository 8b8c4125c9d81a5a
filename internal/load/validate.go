package load

import (
	"fmt"
	"strings"

	"github.com/micurley/chunkdata/internal/store"
	"github.com/micurley/chunkdata/pkg/types"
)

// ValidationError describes one problem with a decoded record.
type ValidationError struct {
	Index   int
	Model   string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d (%s): %s", e.Index, e.Model, e.Message)
	}
	return fmt.Sprintf("record %d (%s), field %q: %s", e.Index, e.Model, e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// RecordValidator checks decoded records against the entity schema before
// they reach the store.
type RecordValidator struct {
	schema store.Schema
}

// NewRecordValidator creates a validator for schema.
func NewRecordValidator(schema store.Schema) *RecordValidator {
	return &RecordValidator{schema: schema}
}

// Validate returns the schema lookup error of the first record with an
// unknown model, or every field problem found as ValidationErrors.
func (v *RecordValidator) Validate(records []types.Record) error {
	var all ValidationErrors
	for i, r := range records {
		if r.Model == "" {
			all = append(all, &ValidationError{Index: i, Message: "model is required"})
			continue
		}
		e, err := v.schema.Entity(r.Model)
		if err != nil {
			return err
		}
		all = append(all, validateRecord(e, r, i)...)
	}
	if len(all) > 0 {
		return all
	}
	return nil
}

func validateRecord(e *types.Entity, r types.Record, index int) []*ValidationError {
	var errs []*ValidationError
	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{
			Index:   index,
			Model:   r.Model,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if isComposite(r.PK) {
		fail("", "primary key must be a scalar, got %T", r.PK)
	}

	for name, value := range r.Fields {
		f, ok := e.Field(name)
		if !ok {
			fail(name, "unknown field")
			continue
		}

		switch {
		case value == nil:
			if !f.Nullable && !f.Many {
				fail(name, "may not be null")
			}
		case f.Many:
			if _, ok := value.([]interface{}); !ok {
				fail(name, "expected a list of references, got %T", value)
			}
		case f.IsRef():
			// A list is a natural key.
			if _, ok := value.(map[string]interface{}); ok {
				fail(name, "expected a primary or natural key, got %T", value)
			}
		case isComposite(value):
			fail(name, "unsupported %s value of type %T", typeName(f), value)
		}
	}
	return errs
}

func isComposite(v interface{}) bool {
	switch v.(type) {
	case []interface{}, map[string]interface{}:
		return true
	}
	return false
}

func typeName(f types.Field) string {
	if f.Type == "" {
		return string(types.FieldText)
	}
	return string(f.Type)
}
