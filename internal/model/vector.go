package model

// FeatureVector is a row conforming to the canonical schema: numeric columns
// (scaled) followed by indicator columns, in the exact order the models were
// trained on.
type FeatureVector struct {
	columns []string
	values  []float64
	index   map[string]int
}

// NewFeatureVector pairs an ordered column list with its values. The slices
// must have equal length; values is copied, columns is shared read-only.
func NewFeatureVector(columns []string, values []float64) FeatureVector {
	v := make([]float64, len(values))
	copy(v, values)
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return FeatureVector{columns: columns, values: v, index: idx}
}

// Len returns the number of columns.
func (f FeatureVector) Len() int { return len(f.values) }

// Columns returns a copy of the column names in order.
func (f FeatureVector) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Values returns a copy of the values in column order.
func (f FeatureVector) Values() []float64 {
	out := make([]float64, len(f.values))
	copy(out, f.values)
	return out
}

// Get returns the value of the named column.
func (f FeatureVector) Get(name string) (float64, bool) {
	i, ok := f.index[name]
	if !ok {
		return 0, false
	}
	return f.values[i], true
}

// Map returns the vector as a column→value map.
func (f FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, len(f.values))
	for i, c := range f.columns {
		m[c] = f.values[i]
	}
	return m
}

// Float32 returns the values as float32 in column order, the positional
// layout model runtimes consume.
func (f FeatureVector) Float32() []float32 {
	out := make([]float32, len(f.values))
	for i, v := range f.values {
		out[i] = float32(v)
	}
	return out
}
