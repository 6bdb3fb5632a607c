package appendix

import (
	"time"

	"github.com/crimson-sun/appendix/internal/model"
)

// Observation is one patient's raw attribute values: numeric vitals and
// labs in original units, categorical signs as their textual category.
type Observation struct {
	Numeric     map[string]float64
	Categorical map[string]string
}

// Stage is the result of one cascade stage.
type Stage struct {
	Label       string  // class, "N/A" or "ERROR"
	Status      string  // "ok", "skipped", "failed", "aborted"
	Probability float64 // probability of Label when Status is "ok"
	Err         error
}

// Result is the recorded outcome of one inference.
type Result struct {
	ID         string
	RecordedAt time.Time
	Attributes map[string]string // audit values in original units
	Diagnosis  Stage
	Severity   Stage
	Management Stage
}

func (o Observation) internal() model.Observation {
	obs := model.NewObservation()
	for k, v := range o.Numeric {
		obs.Numeric[k] = v
	}
	for k, v := range o.Categorical {
		obs.Categorical[k] = v
	}
	return obs
}

func resultFromAudit(rec model.AuditRecord) Result {
	return Result{
		ID:         rec.ID,
		RecordedAt: rec.RecordedAt,
		Attributes: rec.Attributes,
		Diagnosis:  stageFromResult(rec.Outcome.Diagnosis),
		Severity:   stageFromResult(rec.Outcome.Severity),
		Management: stageFromResult(rec.Outcome.Management),
	}
}

func stageFromResult(r model.StageResult) Stage {
	s := Stage{Label: r.Label(), Status: r.Status.String(), Err: r.Err}
	if r.HasProbability() {
		s.Probability = r.Probability
	}
	return s
}
