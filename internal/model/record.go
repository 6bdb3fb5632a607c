package model

import "time"

// InferenceRecord is the transient per-patient record of one inference call.
// Vector is nil when the observation could not be prepared.
type InferenceRecord struct {
	ID          string
	RecordedAt  time.Time
	Observation Observation
	Vector      *FeatureVector
	Outcome     Outcome
}

// AuditRecord is the flattened, human-readable form of an InferenceRecord:
// original-scale attribute values and categorical labels as text, plus the
// outcome. Attributes with no value are absent from the map.
type AuditRecord struct {
	ID         string
	RecordedAt time.Time
	Attributes map[string]string
	Outcome    Outcome
}
