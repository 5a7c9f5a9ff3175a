// Package schemas validates JSON documents from outside the process against
// JSON Schemas before they are decoded.
package schemas

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// rootField names the document itself in violations
const rootField = "(root)"

// Violation is one failed schema rule
type Violation struct {
	Field   string
	Message string
}

// ValidationError lists every rule a document broke
type ValidationError struct {
	Violations []Violation
}

// Error renders the violations on one line so a feed report stays one row per record
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return strings.Join(parts, "; ")
}

// Fields returns the violated field paths in order
func (e *ValidationError) Fields() []string {
	fields := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		fields[i] = v.Field
	}
	return fields
}

// Validator applies one compiled schema. It is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile parses a schema once so it can be applied to many documents
func Compile(schemaContent string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaContent))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateBytes validates one JSON document. Malformed JSON is a violation on
// the document root.
func (v *Validator) ValidateBytes(doc []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &ValidationError{Violations: []Violation{{Field: rootField, Message: "malformed JSON: " + err.Error()}}}
	}
	if result.Valid() {
		return nil
	}

	out := &ValidationError{Violations: make([]Violation, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = rootField
		}
		out.Violations = append(out.Violations, Violation{Field: field, Message: desc.Description()})
	}
	return out
}
