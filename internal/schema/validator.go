// Package schema validates structured values parsed from assistant replies.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed record.schema.json
var recordSchema string

const recordSchemaURL = "https://ai-voice-bridge-service/schemas/emergency-record.json"

// Validator checks candidate emergency records against the embedded schema.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded record schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(recordSchemaURL, strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := compiler.Compile(recordSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// MustNew is New for package-level initialisation; the schema is embedded so
// a failure is a build defect.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a value decoded by encoding/json.
func (v *Validator) Validate(value any) error {
	return v.schema.Validate(value)
}
