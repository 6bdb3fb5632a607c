// Package predictor defines the classifier capability the cascade consumes
// and its ONNX Runtime backend.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/crimson-sun/appendix/internal/model"
)

var (
	// ErrArtifactNotFound is returned when a target's model artifact or its
	// class list is absent from the models directory.
	ErrArtifactNotFound = errors.New("model artifact not found")

	// ErrPrediction wraps every failure raised while running a model.
	ErrPrediction = errors.New("prediction failed")

	// ErrRuntimeUnavailable is returned when the ONNX Runtime shared library
	// cannot be loaded or initialized.
	ErrRuntimeUnavailable = errors.New("onnx runtime unavailable")
)

// Predictor is a trained classifier for one cascade target.
//
// PredictProba returns one probability per entry of Classes, in the same
// order. Callers must look the predicted class up in Classes on every call
// rather than assume a fixed position.
type Predictor interface {
	Target() model.Stage
	Classes() []string
	Predict(ctx context.Context, vec model.FeatureVector) (string, error)
	PredictProba(ctx context.Context, vec model.FeatureVector) ([]float64, error)
}

// Classifier is implemented by predictors that produce the label and the
// probability row from a single model evaluation.
type Classifier interface {
	Classify(ctx context.Context, vec model.FeatureVector) (string, []float64, error)
}

// Classify returns p's predicted class and probability row. A Classifier is
// evaluated once; any other Predictor gets Predict then PredictProba.
func Classify(ctx context.Context, p Predictor, vec model.FeatureVector) (string, []float64, error) {
	if c, ok := p.(Classifier); ok {
		return c.Classify(ctx, vec)
	}
	class, err := p.Predict(ctx, vec)
	if err != nil {
		return "", nil, err
	}
	probs, err := p.PredictProba(ctx, vec)
	if err != nil {
		return "", nil, err
	}
	return class, probs, nil
}

// ArtifactPath returns the model artifact path for a target inside dir.
func ArtifactPath(dir string, target model.Stage) string {
	return filepath.Join(dir, "appendicitis_"+string(target)+".onnx")
}

// ClassesPath returns the sidecar class-list path of a model artifact.
func ClassesPath(artifact string) string {
	return artifact + ".classes.json"
}

// ProbabilityOf returns the probability of class from probs, located by the
// class's index in p.Classes().
func ProbabilityOf(p Predictor, class string, probs []float64) (float64, error) {
	classes := p.Classes()
	for i, c := range classes {
		if c != class {
			continue
		}
		if i >= len(probs) {
			return 0, fmt.Errorf("%w: %s: class %q at index %d but only %d probabilities",
				ErrPrediction, p.Target(), class, i, len(probs))
		}
		return probs[i], nil
	}
	return 0, fmt.Errorf("%w: %s: class %q not in %q", ErrPrediction, p.Target(), class, classes)
}

// unavailable stands in for a target whose model failed to load. Every call
// returns the load error.
type unavailable struct {
	target model.Stage
	err    error
}

// Unavailable returns a Predictor that fails every call with err.
func Unavailable(target model.Stage, err error) Predictor {
	return &unavailable{target: target, err: err}
}

func (u *unavailable) Target() model.Stage { return u.target }
func (u *unavailable) Classes() []string   { return nil }

func (u *unavailable) Predict(context.Context, model.FeatureVector) (string, error) {
	return "", u.err
}

func (u *unavailable) PredictProba(context.Context, model.FeatureVector) ([]float64, error) {
	return nil, u.err
}
