// Package reconciler aligns an encoded row with the canonical feature schema.
package reconciler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/schema"
)

// ErrSchemaMismatch is returned when a numeric canonical column is absent
// from the row. Only indicator columns may be zero-filled.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Reconciler produces FeatureVectors in canonical column order.
type Reconciler struct {
	columns []string
	numeric map[string]bool
}

// New creates a Reconciler for the catalogue's canonical schema.
func New(cat *schema.Catalogue) *Reconciler {
	numeric := make(map[string]bool)
	for _, name := range cat.NumericNames() {
		numeric[name] = true
	}
	return &Reconciler{columns: cat.Schema().Columns(), numeric: numeric}
}

// Reconcile orders row by the canonical schema. Canonical indicator columns
// missing from row are 0; columns not in the schema (including leaked target
// columns) are dropped. Reconciling an already reconciled row's Map() yields
// the same vector.
func (r *Reconciler) Reconcile(row map[string]float64) (model.FeatureVector, error) {
	values := make([]float64, len(r.columns))
	var missing []string
	for i, col := range r.columns {
		v, ok := row[col]
		if !ok {
			if r.numeric[col] {
				missing = append(missing, col)
			}
			continue
		}
		values[i] = v
	}
	if len(missing) > 0 {
		return model.FeatureVector{}, fmt.Errorf("%w: numeric columns absent: %s",
			ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return model.NewFeatureVector(r.columns, values), nil
}

// Dropped lists the columns of row that are not in the canonical schema,
// sorted. Used for diagnostics only.
func (r *Reconciler) Dropped(row map[string]float64) []string {
	known := make(map[string]bool, len(r.columns))
	for _, c := range r.columns {
		known[c] = true
	}
	var out []string
	for k := range row {
		if !known[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
