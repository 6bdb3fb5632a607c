package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const jsonSchemaURL = "schema://appendix/observation.json"

// JSONSchema returns a JSON Schema document describing an observation
// object: numbers for numeric attributes, strings for categorical ones.
// Allowed categories are listed as examples only; values are normalized
// after validation and unknown ones are left to the encoder's policy.
// Numeric attributes not filled by any default rule are required.
func (c *Catalogue) JSONSchema() map[string]any {
	defaulted := make(map[string]bool)
	for _, rule := range c.doc.Defaults {
		for name := range rule.Set {
			defaulted[name] = true
		}
	}

	props := make(map[string]any, len(c.doc.Attributes))
	required := []string{}
	for _, a := range c.doc.Attributes {
		switch a.Kind {
		case KindNumeric:
			props[a.Name] = map[string]any{"type": "number"}
			if !defaulted[a.Name] {
				required = append(required, a.Name)
			}
		case KindCategorical:
			props[a.Name] = map[string]any{
				"type":        "string",
				"description": fmt.Sprintf("one of %q", a.Values),
				"examples":    a.Values,
			}
		}
	}

	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"title":      "observation " + c.doc.Version,
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Validator checks decoded JSON observations against the catalogue schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the catalogue's JSON Schema.
func (c *Catalogue) NewValidator() (*Validator, error) {
	// The compiler wants a parsed JSON value, so round-trip through encoding/json.
	raw, err := json.Marshal(c.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("schema: marshal json schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: parse json schema: %w", err)
	}

	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(jsonSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := comp.Compile(jsonSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks a decoded JSON value (as produced by json.Unmarshal into
// any). Failures wrap ErrInvalidValue.
func (v *Validator) Validate(doc any) error {
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}
