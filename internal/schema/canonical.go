package schema

// CanonicalSchema is the fixed, ordered list of feature columns every model
// was trained against. It is immutable once built.
type CanonicalSchema struct {
	columns []string
	index   map[string]int
}

func newCanonicalSchema(columns []string) CanonicalSchema {
	cols := make([]string, len(columns))
	copy(cols, columns)
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	return CanonicalSchema{columns: cols, index: idx}
}

// Len returns the number of feature columns.
func (s CanonicalSchema) Len() int { return len(s.columns) }

// Columns returns a copy of the ordered column names.
func (s CanonicalSchema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Index returns the position of a column, or -1 if it is not in the schema.
func (s CanonicalSchema) Index(name string) int {
	i, ok := s.index[name]
	if !ok {
		return -1
	}
	return i
}

// Contains reports whether the column is part of the schema.
func (s CanonicalSchema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}
