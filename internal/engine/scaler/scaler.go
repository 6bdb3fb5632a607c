// Package scaler implements the per-attribute min-max transform applied to
// numeric attributes before inference and inverted for display.
package scaler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName is the scaler artifact name inside the models directory.
const FileName = "minmax_scaler.json"

// ErrMissingArtifact is returned by Load when the scaler artifact does not
// exist. Inference cannot proceed without it.
var ErrMissingArtifact = errors.New("scaler artifact not found")

// Range is the observed minimum and maximum of one numeric attribute.
type Range struct {
	Name string  `json:"name"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// FittedScaler holds the fitted ranges in attribute order. It is never
// mutated after Fit or Load returns.
type FittedScaler struct {
	ranges []Range
	index  map[string]int
}

type artifact struct {
	Attributes []Range `json:"attributes"`
}

// Path returns the scaler artifact path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Fit observes the minimum and maximum of each named attribute over rows.
// Every row must carry every name.
func Fit(names []string, rows []map[string]float64) (*FittedScaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("scaler: fit: no rows")
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("scaler: fit: no attributes")
	}
	ranges := make([]Range, len(names))
	for i, name := range names {
		ranges[i].Name = name
		for j, row := range rows {
			v, ok := row[name]
			if !ok {
				return nil, fmt.Errorf("scaler: fit: row %d has no value for %q", j, name)
			}
			if j == 0 || v < ranges[i].Min {
				ranges[i].Min = v
			}
			if j == 0 || v > ranges[i].Max {
				ranges[i].Max = v
			}
		}
	}
	return newFitted(ranges)
}

func newFitted(ranges []Range) (*FittedScaler, error) {
	s := &FittedScaler{ranges: ranges, index: make(map[string]int, len(ranges))}
	for i, r := range ranges {
		if r.Name == "" {
			return nil, fmt.Errorf("scaler: attribute %d has no name", i)
		}
		if _, dup := s.index[r.Name]; dup {
			return nil, fmt.Errorf("scaler: duplicate attribute %q", r.Name)
		}
		if r.Min > r.Max {
			return nil, fmt.Errorf("scaler: attribute %q has min %v > max %v", r.Name, r.Min, r.Max)
		}
		s.index[r.Name] = i
	}
	return s, nil
}

// Names returns the fitted attribute names in order.
func (s *FittedScaler) Names() []string {
	out := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		out[i] = r.Name
	}
	return out
}

// Range returns the fitted range of one attribute.
func (s *FittedScaler) Range(name string) (Range, bool) {
	i, ok := s.index[name]
	if !ok {
		return Range{}, false
	}
	return s.ranges[i], true
}

// Apply maps each known attribute to (v-min)/(max-min). Values outside the
// fitted range are not clamped. A constant attribute maps to 0. Keys the
// scaler does not know are copied unchanged.
func (s *FittedScaler) Apply(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		i, ok := s.index[k]
		if !ok {
			out[k] = v
			continue
		}
		r := s.ranges[i]
		span := r.Max - r.Min
		if span == 0 {
			out[k] = 0
			continue
		}
		out[k] = (v - r.Min) / span
	}
	return out
}

// Invert maps scaled values back to original units: v*(max-min)+min.
func (s *FittedScaler) Invert(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		i, ok := s.index[k]
		if !ok {
			out[k] = v
			continue
		}
		r := s.ranges[i]
		out[k] = v*(r.Max-r.Min) + r.Min
	}
	return out
}

// Save writes the artifact as JSON, creating the parent directory. The file
// is written to a temporary sibling and renamed into place.
func (s *FittedScaler) Save(path string) error {
	data, err := json.MarshalIndent(artifact{Attributes: s.ranges}, "", "  ")
	if err != nil {
		return fmt.Errorf("scaler: encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("scaler: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("scaler: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("scaler: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("scaler: sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("scaler: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("scaler: rename to %s: %w", path, err)
	}
	return nil
}

// Load reads a scaler artifact written by Save.
func Load(path string) (*FittedScaler, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, path)
	}
	if err != nil {
		return nil, fmt.Errorf("scaler: read %s: %w", path, err)
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("scaler: decode %s: %w", path, err)
	}
	if len(a.Attributes) == 0 {
		return nil, fmt.Errorf("scaler: %s has no attributes", path)
	}
	return newFitted(a.Attributes)
}
