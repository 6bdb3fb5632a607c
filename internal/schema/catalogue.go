package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/appendix/internal/model"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

// ErrInvalidCatalogue is returned when a catalogue document is internally
// inconsistent (derived columns differ from the declared feature list,
// duplicate names, unknown references).
var ErrInvalidCatalogue = errors.New("invalid catalogue")

// Kind is the type of a source clinical field.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// AttributeSpec describes one source clinical field. Values is the ordered,
// exhaustive list of allowed categories and is empty for numeric fields.
type AttributeSpec struct {
	Name   string   `yaml:"name"`
	Kind   Kind     `yaml:"kind"`
	Values []string `yaml:"values,omitempty"`
}

// Target describes one cascade classifier target.
type Target struct {
	Name         model.Stage `yaml:"name"`
	Positive     string      `yaml:"positive,omitempty"`      // class that lets the cascade continue
	PositiveOnly bool        `yaml:"positive_only,omitempty"` // train only on Diagnosis-positive rows
	Exclude      []string    `yaml:"exclude,omitempty"`       // classes dropped from the training table
}

// Condition matches an observation attribute against a value.
type Condition struct {
	Attribute string `yaml:"attribute"`
	Equals    string `yaml:"equals"`
}

// DefaultRule fills absent attributes when its condition holds.
type DefaultRule struct {
	When Condition         `yaml:"when"`
	Set  map[string]string `yaml:"set"`
}

type document struct {
	Version      string          `yaml:"version"`
	Attributes   []AttributeSpec `yaml:"attributes"`
	Features     []string        `yaml:"features"`
	AuditColumns []string        `yaml:"audit_columns"`
	Targets      []Target        `yaml:"targets"`
	Defaults     []DefaultRule   `yaml:"defaults"`
}

// Catalogue is the validated, immutable clinical schema: attribute specs,
// the canonical feature schema, audit column order, cascade targets and
// conditional defaults. Safe for concurrent use.
type Catalogue struct {
	doc    document
	schema CanonicalSchema
	byName map[string]int
}

// Default returns the built-in catalogue that ships with the binary.
func Default() (*Catalogue, error) {
	return Load(bytes.NewReader(defaultCatalogue))
}

// Load decodes and validates a catalogue document.
func Load(r io.Reader) (*Catalogue, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: decode catalogue: %w", err)
	}
	return build(doc)
}

func build(doc document) (*Catalogue, error) {
	c := &Catalogue{doc: doc, byName: make(map[string]int, len(doc.Attributes))}
	if err := c.validateAttributes(); err != nil {
		return nil, err
	}

	derived := c.deriveColumns()
	if err := sameColumns(derived, doc.Features); err != nil {
		return nil, err
	}
	c.schema = newCanonicalSchema(derived)

	if err := c.validateAuditColumns(); err != nil {
		return nil, err
	}
	if err := c.validateTargets(); err != nil {
		return nil, err
	}
	if err := c.validateDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalogue) validateAttributes() error {
	if len(c.doc.Attributes) == 0 {
		return fmt.Errorf("%w: no attributes", ErrInvalidCatalogue)
	}
	seenCategorical := false
	for i, a := range c.doc.Attributes {
		if a.Name == "" {
			return fmt.Errorf("%w: attribute %d has no name", ErrInvalidCatalogue, i)
		}
		if _, dup := c.byName[a.Name]; dup {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalidCatalogue, a.Name)
		}
		c.byName[a.Name] = i

		switch a.Kind {
		case KindNumeric:
			if seenCategorical {
				return fmt.Errorf("%w: numeric attribute %q after categorical attributes", ErrInvalidCatalogue, a.Name)
			}
			if len(a.Values) > 0 {
				return fmt.Errorf("%w: numeric attribute %q declares values", ErrInvalidCatalogue, a.Name)
			}
		case KindCategorical:
			seenCategorical = true
			if len(a.Values) == 0 {
				return fmt.Errorf("%w: categorical attribute %q has no values", ErrInvalidCatalogue, a.Name)
			}
			seen := make(map[string]bool, len(a.Values))
			for _, v := range a.Values {
				if seen[v] {
					return fmt.Errorf("%w: attribute %q repeats value %q", ErrInvalidCatalogue, a.Name, v)
				}
				seen[v] = true
			}
		default:
			return fmt.Errorf("%w: attribute %q has unknown kind %q", ErrInvalidCatalogue, a.Name, a.Kind)
		}
	}
	return nil
}

func (c *Catalogue) deriveColumns() []string {
	var cols []string
	for _, a := range c.doc.Attributes {
		if a.Kind == KindNumeric {
			cols = append(cols, a.Name)
			continue
		}
		for _, v := range a.Values {
			cols = append(cols, IndicatorName(a.Name, v))
		}
	}
	return cols
}

// sameColumns reports the first position where derived and declared differ.
func sameColumns(derived, declared []string) error {
	n := len(derived)
	if len(declared) > n {
		n = len(declared)
	}
	for i := 0; i < n; i++ {
		var d, f string
		if i < len(derived) {
			d = derived[i]
		}
		if i < len(declared) {
			f = declared[i]
		}
		if d != f {
			return fmt.Errorf("%w: feature %d is %q, attributes derive %q", ErrInvalidCatalogue, i, f, d)
		}
	}
	return nil
}

func (c *Catalogue) validateAuditColumns() error {
	if len(c.doc.AuditColumns) != len(c.doc.Attributes) {
		return fmt.Errorf("%w: audit_columns has %d entries, want %d",
			ErrInvalidCatalogue, len(c.doc.AuditColumns), len(c.doc.Attributes))
	}
	seen := make(map[string]bool, len(c.doc.AuditColumns))
	for _, col := range c.doc.AuditColumns {
		if _, ok := c.byName[col]; !ok {
			return fmt.Errorf("%w: audit column %q is not an attribute", ErrInvalidCatalogue, col)
		}
		if seen[col] {
			return fmt.Errorf("%w: duplicate audit column %q", ErrInvalidCatalogue, col)
		}
		seen[col] = true
	}
	return nil
}

func (c *Catalogue) validateTargets() error {
	seen := make(map[model.Stage]bool, len(c.doc.Targets))
	for _, t := range c.doc.Targets {
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate target %q", ErrInvalidCatalogue, t.Name)
		}
		seen[t.Name] = true
	}
	for _, st := range model.Stages() {
		if !seen[st] {
			return fmt.Errorf("%w: missing target %q", ErrInvalidCatalogue, st)
		}
	}
	if c.PositiveClass() == "" {
		return fmt.Errorf("%w: target %q has no positive class", ErrInvalidCatalogue, model.StageDiagnosis)
	}
	return nil
}

func (c *Catalogue) validateDefaults() error {
	for i, rule := range c.doc.Defaults {
		a, ok := c.Attribute(rule.When.Attribute)
		if !ok {
			return fmt.Errorf("%w: default %d: unknown attribute %q", ErrInvalidCatalogue, i, rule.When.Attribute)
		}
		if a.Kind == KindCategorical && !a.Allows(rule.When.Equals) {
			return fmt.Errorf("%w: default %d: %q is not a value of %q", ErrInvalidCatalogue, i, rule.When.Equals, a.Name)
		}
		for name, val := range rule.Set {
			t, ok := c.Attribute(name)
			if !ok {
				return fmt.Errorf("%w: default %d: unknown attribute %q", ErrInvalidCatalogue, i, name)
			}
			switch t.Kind {
			case KindNumeric:
				if _, err := strconv.ParseFloat(val, 64); err != nil {
					return fmt.Errorf("%w: default %d: %s=%q is not numeric", ErrInvalidCatalogue, i, name, val)
				}
			case KindCategorical:
				if !t.Allows(val) {
					return fmt.Errorf("%w: default %d: %q is not a value of %q", ErrInvalidCatalogue, i, val, name)
				}
			}
		}
	}
	return nil
}

// IndicatorName returns the indicator column name for attribute=value.
func IndicatorName(attribute, value string) string {
	return attribute + "_" + value
}

// Allows reports whether value is one of the attribute's allowed categories.
func (a AttributeSpec) Allows(value string) bool {
	for _, v := range a.Values {
		if v == value {
			return true
		}
	}
	return false
}

// Version returns the catalogue version string.
func (c *Catalogue) Version() string { return c.doc.Version }

// Schema returns the canonical feature schema.
func (c *Catalogue) Schema() CanonicalSchema { return c.schema }

// Attributes returns all attribute specs in feature order.
func (c *Catalogue) Attributes() []AttributeSpec {
	out := make([]AttributeSpec, len(c.doc.Attributes))
	copy(out, c.doc.Attributes)
	return out
}

// Attribute looks up an attribute spec by name.
func (c *Catalogue) Attribute(name string) (AttributeSpec, bool) {
	i, ok := c.byName[name]
	if !ok {
		return AttributeSpec{}, false
	}
	return c.doc.Attributes[i], true
}

// Numeric returns the numeric attribute specs in feature order.
func (c *Catalogue) Numeric() []AttributeSpec { return c.ofKind(KindNumeric) }

// Categorical returns the categorical attribute specs in feature order.
func (c *Catalogue) Categorical() []AttributeSpec { return c.ofKind(KindCategorical) }

// NumericNames returns the numeric attribute names in feature order.
func (c *Catalogue) NumericNames() []string {
	specs := c.Numeric()
	names := make([]string, len(specs))
	for i, a := range specs {
		names[i] = a.Name
	}
	return names
}

func (c *Catalogue) ofKind(k Kind) []AttributeSpec {
	var out []AttributeSpec
	for _, a := range c.doc.Attributes {
		if a.Kind == k {
			out = append(out, a)
		}
	}
	return out
}

// AuditColumns returns the original-attribute column order of the audit table.
func (c *Catalogue) AuditColumns() []string {
	out := make([]string, len(c.doc.AuditColumns))
	copy(out, c.doc.AuditColumns)
	return out
}

// Target returns the target description for a cascade stage.
func (c *Catalogue) Target(stage model.Stage) (Target, bool) {
	for _, t := range c.doc.Targets {
		if t.Name == stage {
			return t, true
		}
	}
	return Target{}, false
}

// PositiveClass returns the Diagnosis class that continues the cascade.
func (c *Catalogue) PositiveClass() string {
	t, _ := c.Target(model.StageDiagnosis)
	return t.Positive
}

// Defaults returns the conditional default rules.
func (c *Catalogue) Defaults() []DefaultRule {
	out := make([]DefaultRule, len(c.doc.Defaults))
	copy(out, c.doc.Defaults)
	return out
}
