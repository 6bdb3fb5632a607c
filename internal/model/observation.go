package model

// Observation is one patient's raw attribute values as produced by upstream
// ETL or intake: numeric vitals/labs in original units and categorical clinical
// signs as their textual category.
type Observation struct {
	Numeric     map[string]float64
	Categorical map[string]string
}

// NewObservation returns an empty Observation with initialized maps.
func NewObservation() Observation {
	return Observation{
		Numeric:     make(map[string]float64),
		Categorical: make(map[string]string),
	}
}

// Clone returns a deep copy so callers can apply defaults without touching
// the caller's maps.
func (o Observation) Clone() Observation {
	c := Observation{
		Numeric:     make(map[string]float64, len(o.Numeric)),
		Categorical: make(map[string]string, len(o.Categorical)),
	}
	for k, v := range o.Numeric {
		c.Numeric[k] = v
	}
	for k, v := range o.Categorical {
		c.Categorical[k] = v
	}
	return c
}
