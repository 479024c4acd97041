// Package tools provides the tool registry, per-caller binding and the built-in booking tools.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// Schema is a compiled JSON schema for tool parameters.
type Schema struct {
	schema *gojsonschema.Schema
}

// CompileSchema compiles raw. An empty schema accepts any object.
func CompileSchema(raw json.RawMessage) (*Schema, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	return &Schema{schema: s}, nil
}

// Validate returns one FieldError per violation, or nil when args conform.
func (s *Schema) Validate(args json.RawMessage) []domain.FieldError {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return []domain.FieldError{{Field: "(root)", Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}
	if result.Valid() {
		return nil
	}
	fields := make([]domain.FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		fields = append(fields, domain.FieldError{Field: fieldName(e), Message: e.Description()})
	}
	return fields
}

// fieldName reports missing required properties under their own name instead of the parent.
func fieldName(e gojsonschema.ResultError) string {
	field := e.Field()
	if e.Type() != "required" {
		return field
	}
	prop, ok := e.Details()["property"].(string)
	if !ok {
		return field
	}
	if field == "(root)" {
		return prop
	}
	return field + "." + prop
}
