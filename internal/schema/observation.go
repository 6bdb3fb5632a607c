package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/appendix/internal/model"
)

var (
	// ErrInvalidValue is returned when a raw value cannot be read as its
	// attribute's kind.
	ErrInvalidValue = errors.New("invalid attribute value")

	// ErrMissingAttribute is returned when a numeric attribute has no value
	// after defaults are applied.
	ErrMissingAttribute = errors.New("missing attribute")
)

// NormalizeCategory trims, NFC-normalizes and case-folds a categorical value
// so that "No", " no" and "NO" all match the allowed "no".
func NormalizeCategory(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// ParseRecord reads a text record (e.g. a CSV row keyed by header) into an
// Observation. Keys that are not catalogue attributes are ignored and empty
// values are treated as absent.
func (c *Catalogue) ParseRecord(rec map[string]string) (model.Observation, error) {
	obs := model.NewObservation()
	for _, a := range c.doc.Attributes {
		raw, ok := rec[a.Name]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := c.set(&obs, a, raw); err != nil {
			return model.Observation{}, err
		}
	}
	return obs, nil
}

// ParseObservation reads a decoded JSON object into an Observation. Numeric
// attributes accept JSON numbers or numeric strings; categorical attributes
// accept strings only.
func (c *Catalogue) ParseObservation(doc map[string]any) (model.Observation, error) {
	obs := model.NewObservation()
	for _, a := range c.doc.Attributes {
		v, ok := doc[a.Name]
		if !ok || v == nil {
			continue
		}
		switch a.Kind {
		case KindNumeric:
			f, err := toFloat(v)
			if err != nil {
				return model.Observation{}, fmt.Errorf("%w: %s: %v", ErrInvalidValue, a.Name, err)
			}
			obs.Numeric[a.Name] = f
		case KindCategorical:
			s, ok := v.(string)
			if !ok {
				return model.Observation{}, fmt.Errorf("%w: %s: want string, got %T", ErrInvalidValue, a.Name, v)
			}
			if strings.TrimSpace(s) == "" {
				continue
			}
			obs.Categorical[a.Name] = NormalizeCategory(s)
		}
	}
	return obs, nil
}

func (c *Catalogue) set(obs *model.Observation, a AttributeSpec, raw string) error {
	switch a.Kind {
	case KindNumeric:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, a.Name, raw)
		}
		obs.Numeric[a.Name] = f
	case KindCategorical:
		obs.Categorical[a.Name] = NormalizeCategory(raw)
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}

// ApplyDefaults returns a copy of obs with conditional defaults filled in.
// Defaults only fill attributes that are absent; recorded values win.
func (c *Catalogue) ApplyDefaults(obs model.Observation) model.Observation {
	out := obs.Clone()
	for _, rule := range c.doc.Defaults {
		if !c.matches(out, rule.When) {
			continue
		}
		for name, val := range rule.Set {
			a, _ := c.Attribute(name)
			switch a.Kind {
			case KindNumeric:
				if _, ok := out.Numeric[name]; !ok {
					f, _ := strconv.ParseFloat(val, 64) // validated at load
					out.Numeric[name] = f
				}
			case KindCategorical:
				if _, ok := out.Categorical[name]; !ok {
					out.Categorical[name] = val
				}
			}
		}
	}
	return out
}

func (c *Catalogue) matches(obs model.Observation, cond Condition) bool {
	a, ok := c.Attribute(cond.Attribute)
	if !ok {
		return false
	}
	if a.Kind == KindNumeric {
		v, ok := obs.Numeric[a.Name]
		if !ok {
			return false
		}
		want, err := strconv.ParseFloat(cond.Equals, 64)
		return err == nil && v == want
	}
	return obs.Categorical[a.Name] == cond.Equals
}

// CheckComplete verifies every numeric attribute has a value. Categorical
// gaps are left to the encoder's unknown-category policy.
func (c *Catalogue) CheckComplete(obs model.Observation) error {
	var missing []string
	for _, a := range c.Numeric() {
		if _, ok := obs.Numeric[a.Name]; !ok {
			missing = append(missing, a.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingAttribute, strings.Join(missing, ", "))
	}
	return nil
}

// Display renders an Observation as attribute→text in the attribute's raw
// form, used when no feature vector could be built.
func (c *Catalogue) Display(obs model.Observation) map[string]string {
	out := make(map[string]string, len(obs.Numeric)+len(obs.Categorical))
	for _, a := range c.doc.Attributes {
		switch a.Kind {
		case KindNumeric:
			if v, ok := obs.Numeric[a.Name]; ok {
				out[a.Name] = FormatNumber(v)
			}
		case KindCategorical:
			if v, ok := obs.Categorical[a.Name]; ok {
				out[a.Name] = v
			}
		}
	}
	return out
}
