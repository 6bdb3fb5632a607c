package output

import (
	"time"

	"github.com/crimson-sun/appendix/internal/engine"
	"github.com/crimson-sun/appendix/internal/model"
)

// Flatten builds the human-readable audit record. Attribute values come
// from the restored feature vector when one exists, and from the raw
// observation (with defaults applied) otherwise.
func Flatten(eng *engine.Engine, rec model.InferenceRecord) model.AuditRecord {
	var attrs map[string]string
	if rec.Vector != nil {
		attrs = eng.Restore(*rec.Vector)
	} else {
		cat := eng.Catalogue()
		attrs = cat.Display(cat.ApplyDefaults(rec.Observation))
	}
	return model.AuditRecord{
		ID:         rec.ID,
		RecordedAt: rec.RecordedAt,
		Attributes: attrs,
		Outcome:    rec.Outcome,
	}
}

// StageDocument is the JSON form of one stage result.
type StageDocument struct {
	Label       string   `json:"label"`
	Status      string   `json:"status"`
	Probability *float64 `json:"probability,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Document is the JSON form of an audit record, shared by the stdout sink,
// the SQLite log and the HTTP API.
type Document struct {
	ID         string            `json:"id"`
	RecordedAt time.Time         `json:"recorded_at"`
	Attributes map[string]string `json:"attributes"`
	Diagnosis  StageDocument     `json:"diagnosis"`
	Severity   StageDocument     `json:"severity"`
	Management StageDocument     `json:"management"`
}

// NewDocument converts an audit record to its JSON form.
func NewDocument(rec model.AuditRecord) Document {
	return Document{
		ID:         rec.ID,
		RecordedAt: rec.RecordedAt.UTC(),
		Attributes: rec.Attributes,
		Diagnosis:  stageDocument(rec.Outcome.Diagnosis),
		Severity:   stageDocument(rec.Outcome.Severity),
		Management: stageDocument(rec.Outcome.Management),
	}
}

func stageDocument(r model.StageResult) StageDocument {
	d := StageDocument{Label: r.Label(), Status: r.Status.String()}
	if r.HasProbability() {
		p := r.Probability
		d.Probability = &p
	}
	if r.Err != nil {
		d.Error = r.Err.Error()
	}
	return d
}
