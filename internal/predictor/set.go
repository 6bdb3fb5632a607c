package predictor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/appendix/internal/model"
)

// Set holds one Predictor per cascade stage.
type Set struct {
	byStage map[model.Stage]Predictor
}

// NewSet builds a Set from explicit predictors. Stages without a predictor
// are bound to an unavailable one.
func NewSet(ps ...Predictor) *Set {
	s := &Set{byStage: make(map[model.Stage]Predictor, 3)}
	for _, p := range ps {
		s.byStage[p.Target()] = p
	}
	for _, st := range model.Stages() {
		if _, ok := s.byStage[st]; !ok {
			s.byStage[st] = Unavailable(st, fmt.Errorf("%w: no predictor for %s", ErrArtifactNotFound, st))
		}
	}
	return s
}

// Get returns the predictor for a stage. It never returns nil.
func (s *Set) Get(stage model.Stage) Predictor {
	if p, ok := s.byStage[stage]; ok {
		return p
	}
	return Unavailable(stage, fmt.Errorf("%w: no predictor for %s", ErrArtifactNotFound, stage))
}

// Available reports which stages have a loaded model.
func (s *Set) Available() map[model.Stage]bool {
	out := make(map[model.Stage]bool, len(s.byStage))
	for st, p := range s.byStage {
		_, down := p.(*unavailable)
		out[st] = !down
	}
	return out
}

// Close releases every predictor that holds runtime resources.
func (s *Set) Close() error {
	var errs []error
	for _, p := range s.byStage {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", p.Target(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// LoadSet loads the three stage models from dir concurrently. width is the
// canonical feature count and libPath the ONNX Runtime shared library.
//
// A missing or unloadable artifact does not fail the load: that stage is
// bound to an unavailable predictor and an actionable message is logged.
// Only a runtime initialization failure, or cancellation of ctx, is
// returned as an error. The runtime is not touched when no artifact exists.
func LoadSet(ctx context.Context, dir, libPath string, width int) (*Set, error) {
	stages := model.Stages()
	loaded := make([]Predictor, len(stages))
	var present []int

	for i, st := range stages {
		path := ArtifactPath(dir, st)
		if _, err := os.Stat(path); err != nil {
			err = fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
			logUnavailable(st, path, err)
			loaded[i] = Unavailable(st, err)
			continue
		}
		present = append(present, i)
	}

	if len(present) > 0 {
		if err := initORT(libPath); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range present {
		st := stages[i]
		path := ArtifactPath(dir, st)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := LoadONNX(st, path, width)
			if err != nil {
				logUnavailable(st, path, err)
				loaded[i] = Unavailable(st, err)
				return nil // a broken model only disables its stage
			}
			slog.Info("model loaded", "target", st, "artifact", path, "classes", p.classes)
			loaded[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(loaded)
		return nil, fmt.Errorf("predictor: load: %w", err)
	}
	return NewSet(loaded...), nil
}

func closeAll(ps []Predictor) {
	for _, p := range ps {
		if c, ok := p.(io.Closer); ok {
			c.Close()
		}
	}
}

func logUnavailable(st model.Stage, path string, err error) {
	hint := "check the artifact was exported with a float probability output and an int64 label output"
	if errors.Is(err, ErrArtifactNotFound) {
		hint = "train and export the model, then place it and its .classes.json file in the models directory"
	}
	slog.Error("model unavailable", "target", st, "artifact", path, "error", err, "hint", hint)
}
