// Package encoder converts categorical attributes to indicator columns and
// back.
package encoder

import (
	"fmt"
	"log/slog"

	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/schema"
)

// Encoder one-hot encodes the categorical attributes of a catalogue.
// It holds no mutable state and is safe for concurrent use.
type Encoder struct {
	attrs  []schema.AttributeSpec
	policy UnknownPolicy
}

// New creates an Encoder for the catalogue's categorical attributes.
func New(cat *schema.Catalogue, policy UnknownPolicy) *Encoder {
	return &Encoder{attrs: cat.Categorical(), policy: policy}
}

// Policy returns the unknown-category policy in effect.
func (e *Encoder) Policy() UnknownPolicy { return e.policy }

// Encode returns one indicator column per allowed value of every categorical
// attribute, named <attribute>_<value>. The column matching the attribute's
// value is 1 and the rest of its group is 0. A value outside the allowed
// list, or a missing attribute, yields an all-zero group subject to the
// policy.
func (e *Encoder) Encode(categorical map[string]string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, a := range e.attrs {
		raw, present := categorical[a.Name]
		value := schema.NormalizeCategory(raw)
		matched := false
		for _, v := range a.Values {
			hit := present && v == value
			if hit {
				matched = true
				out[schema.IndicatorName(a.Name, v)] = 1
			} else {
				out[schema.IndicatorName(a.Name, v)] = 0
			}
		}
		if matched {
			continue
		}
		if err := e.unknown(a, raw, present); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Encoder) unknown(a schema.AttributeSpec, raw string, present bool) error {
	switch e.policy {
	case Reject:
		if !present {
			return fmt.Errorf("%w: %s has no value", ErrUnknownCategory, a.Name)
		}
		return fmt.Errorf("%w: %s=%q (allowed %q)", ErrUnknownCategory, a.Name, raw, a.Values)
	case Warn:
		if !present {
			slog.Warn("categorical attribute missing, indicators zero-filled", "attribute", a.Name)
			return nil
		}
		slog.Warn("unknown category, indicators zero-filled",
			"attribute", a.Name, "value", raw, "allowed", a.Values)
	}
	return nil
}

// Decode recovers each categorical attribute's value from its indicator
// columns: the first allowed value whose indicator is 1 wins. An attribute
// with no set indicator decodes to model.NotAvailable.
func (e *Encoder) Decode(columns map[string]float64) map[string]string {
	out := make(map[string]string, len(e.attrs))
	for _, a := range e.attrs {
		out[a.Name] = model.NotAvailable
		for _, v := range a.Values {
			if columns[schema.IndicatorName(a.Name, v)] == 1 {
				out[a.Name] = v
				break
			}
		}
	}
	return out
}
