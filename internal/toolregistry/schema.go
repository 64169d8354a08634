package toolregistry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles a tool's JSON Schema once and validates raw
// parameter payloads against it on every call, so a malformed tool call is
// rejected before it reaches tool-specific logic.
type SchemaValidator struct {
	compiled *jsonschema.Schema
}

// NewSchemaValidator compiles schema (as produced by a Tool's Schema()
// method) into a reusable validator.
func NewSchemaValidator(schema map[string]any) (*SchemaValidator, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("toolregistry: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: compile schema: %w", err)
	}
	return &SchemaValidator{compiled: compiled}, nil
}

// Validate checks raw parameter JSON against the compiled schema.
func (v *SchemaValidator) Validate(params json.RawMessage) error {
	if v == nil || v.compiled == nil {
		return nil
	}
	var doc any
	if len(params) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(params, &doc); err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return err
	}
	return nil
}
