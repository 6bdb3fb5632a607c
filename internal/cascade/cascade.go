// Package cascade runs the Diagnosis → Severity → Management classifier
// cascade as an explicit state machine.
package cascade

import (
	"context"
	"log/slog"

	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/predictor"
)

// Controller evaluates the cascade for one FeatureVector at a time. It is
// stateless between calls.
type Controller struct {
	predictors *predictor.Set
	positive   string
}

// New creates a Controller. positive is the Diagnosis class that lets the
// cascade continue to Severity and Management.
func New(set *predictor.Set, positive string) *Controller {
	return &Controller{predictors: set, positive: positive}
}

// stateFn is one cascade state; it records its stage result and returns the
// next state, or nil when the cascade is done.
type stateFn func(ctx context.Context, r *run) stateFn

type run struct {
	c   *Controller
	vec model.FeatureVector
	out model.Outcome
}

// Run evaluates the cascade. It never returns an error: every failure is
// captured in the stage results of the Outcome.
func (c *Controller) Run(ctx context.Context, vec model.FeatureVector) model.Outcome {
	r := &run{c: c, vec: vec, out: skipped()}
	for state := stateFn(start); state != nil; {
		state = state(ctx, r)
	}
	return r.out
}

// Aborted returns the outcome recorded when the observation could not be
// prepared and no stage ran.
func Aborted(err error) model.Outcome {
	return model.Outcome{
		Diagnosis:  model.StageResult{Stage: model.StageDiagnosis, Status: model.StatusAborted, Err: err},
		Severity:   model.StageResult{Stage: model.StageSeverity, Status: model.StatusAborted, Err: err},
		Management: model.StageResult{Stage: model.StageManagement, Status: model.StatusAborted, Err: err},
	}
}

func skipped() model.Outcome {
	return model.Outcome{
		Diagnosis:  model.StageResult{Stage: model.StageDiagnosis},
		Severity:   model.StageResult{Stage: model.StageSeverity},
		Management: model.StageResult{Stage: model.StageManagement},
	}
}

func start(ctx context.Context, r *run) stateFn {
	return diagnosis
}

func diagnosis(ctx context.Context, r *run) stateFn {
	res := r.c.evaluate(ctx, model.StageDiagnosis, r.vec)
	r.out.Diagnosis = res
	if res.Status == model.StatusFailed {
		// Fatal: nothing downstream can be trusted.
		r.out.Severity = model.StageResult{Stage: model.StageSeverity, Status: model.StatusAborted, Err: res.Err}
		r.out.Management = model.StageResult{Stage: model.StageManagement, Status: model.StatusAborted, Err: res.Err}
		return nil
	}
	if res.Class != r.c.positive {
		return nil
	}
	return severity
}

func severity(ctx context.Context, r *run) stateFn {
	r.out.Severity = r.c.evaluate(ctx, model.StageSeverity, r.vec)
	return management
}

func management(ctx context.Context, r *run) stateFn {
	r.out.Management = r.c.evaluate(ctx, model.StageManagement, r.vec)
	return nil
}

// evaluate runs one stage. The predicted class's probability is located by
// its index in the predictor's class list on every call.
func (c *Controller) evaluate(ctx context.Context, stage model.Stage, vec model.FeatureVector) model.StageResult {
	p := c.predictors.Get(stage)
	fail := func(err error) model.StageResult {
		slog.Warn("cascade stage failed", "stage", stage, "error", err)
		return model.StageResult{Stage: stage, Status: model.StatusFailed, Err: err}
	}

	class, probs, err := predictor.Classify(ctx, p, vec)
	if err != nil {
		return fail(err)
	}
	prob, err := predictor.ProbabilityOf(p, class, probs)
	if err != nil {
		return fail(err)
	}

	slog.Debug("cascade stage", "stage", stage, "class", class, "probability", prob)
	return model.StageResult{Stage: stage, Status: model.StatusOk, Class: class, Probability: prob}
}
