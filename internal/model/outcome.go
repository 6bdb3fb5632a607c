package model

// Stage names one step of the Diagnosis → Severity → Management cascade.
// The string value doubles as the target column name.
type Stage string

const (
	StageDiagnosis  Stage = "Diagnosis"
	StageSeverity   Stage = "Severity"
	StageManagement Stage = "Management"
)

// Stages lists the cascade stages in evaluation order.
func Stages() []Stage {
	return []Stage{StageDiagnosis, StageSeverity, StageManagement}
}

// Sentinel labels written in place of a class.
const (
	NotAvailable = "N/A"
	ErrorLabel   = "ERROR"
)

// StageStatus tags how a stage ended.
type StageStatus int

const (
	StatusSkipped StageStatus = iota
	StatusOk
	StatusFailed
	// StatusAborted marks a stage that never ran because the cascade hit a
	// fatal error before reaching it.
	StatusAborted
)

func (s StageStatus) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "skipped"
	}
}

// StageResult is the tagged result of one cascade stage.
type StageResult struct {
	Stage       Stage
	Status      StageStatus
	Class       string  // set when Status == StatusOk
	Probability float64 // probability of Class, set when Status == StatusOk
	Err         error   // set when Status is StatusFailed or StatusAborted
}

// Label returns the value written to the audit table for this stage.
// A failed Diagnosis is fatal and reads ERROR, as does every aborted stage;
// a failed downstream stage reads N/A, the same as a skipped one.
func (r StageResult) Label() string {
	switch r.Status {
	case StatusOk:
		return r.Class
	case StatusAborted:
		return ErrorLabel
	case StatusFailed:
		if r.Stage == StageDiagnosis {
			return ErrorLabel
		}
		return NotAvailable
	default:
		return NotAvailable
	}
}

// HasProbability reports whether Probability carries a value.
func (r StageResult) HasProbability() bool { return r.Status == StatusOk }

// Outcome holds the three stage results of one inference.
type Outcome struct {
	Diagnosis  StageResult
	Severity   StageResult
	Management StageResult
}

// Results returns the stage results in cascade order.
func (o Outcome) Results() []StageResult {
	return []StageResult{o.Diagnosis, o.Severity, o.Management}
}

// Fatal reports whether the cascade could not produce a diagnosis.
func (o Outcome) Fatal() bool {
	return o.Diagnosis.Status == StatusFailed || o.Diagnosis.Status == StatusAborted
}

// Err returns the first stage error, or nil.
func (o Outcome) Err() error {
	for _, r := range o.Results() {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
