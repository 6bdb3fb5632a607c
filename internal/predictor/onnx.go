package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/crimson-sun/appendix/internal/model"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			ortEnv.err = fmt.Errorf("%w: %s: %v", ErrRuntimeUnavailable, libPath, err)
		}
	})
	return ortEnv.err
}

// ONNX is a Predictor backed by an ONNX Runtime session. The model takes a
// single float tensor [batch, features] and yields an int64 class-index
// label tensor [batch] and a float probability tensor [batch, classes].
type ONNX struct {
	target  model.Stage
	classes []string
	session *ort.DynamicAdvancedSession
	width   int64
}

// LoadONNX opens the artifact for target. The runtime must already be
// initialized (see LoadSet). width is the expected feature count.
func LoadONNX(target model.Stage, path string, width int) (*ONNX, error) {
	classes, err := readClasses(ClassesPath(path))
	if err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("predictor: %s: read model info: %w", path, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("predictor: %s: expected 1 input, got %d", path, len(inputs))
	}
	dims := inputs[0].Dimensions
	if len(dims) != 2 {
		return nil, fmt.Errorf("predictor: %s: expected 2D input tensor, got %v", path, dims)
	}
	if dims[1] > 0 && dims[1] != int64(width) {
		return nil, fmt.Errorf("predictor: %s: model expects %d features, schema has %d", path, dims[1], width)
	}

	outputNames, err := validateOutputs(outputs)
	if err != nil {
		return nil, fmt.Errorf("predictor: %s: %w", path, err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("predictor: create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(path, []string{inputs[0].Name}, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("predictor: %s: create session: %w", path, err)
	}

	return &ONNX{
		target:  target,
		classes: classes,
		session: session,
		width:   int64(width),
	}, nil
}

// validateOutputs finds the int64 label tensor and the float probability
// tensor and returns the output names in [label, probabilities] order.
func validateOutputs(outputs []ort.InputOutputInfo) ([]string, error) {
	var label, proba string
	for _, o := range outputs {
		switch o.DataType {
		case ort.TensorElementDataTypeInt64:
			if label == "" {
				label = o.Name
			}
		case ort.TensorElementDataTypeFloat:
			if proba == "" {
				proba = o.Name
			}
		}
	}
	if label == "" {
		return nil, fmt.Errorf("no int64 label output")
	}
	if proba == "" {
		return nil, fmt.Errorf("no float probability output (export without zipmap)")
	}
	return []string{label, proba}, nil
}

func readClasses(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("predictor: read %s: %w", path, err)
	}
	var classes []string
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, fmt.Errorf("predictor: decode %s: %w", path, err)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("predictor: %s lists no classes", path)
	}
	return classes, nil
}

// Target implements Predictor.
func (p *ONNX) Target() model.Stage { return p.target }

// Classes implements Predictor.
func (p *ONNX) Classes() []string {
	out := make([]string, len(p.classes))
	copy(out, p.classes)
	return out
}

// Predict implements Predictor.
func (p *ONNX) Predict(ctx context.Context, vec model.FeatureVector) (string, error) {
	class, _, err := p.Classify(ctx, vec)
	return class, err
}

// PredictProba implements Predictor.
func (p *ONNX) PredictProba(ctx context.Context, vec model.FeatureVector) ([]float64, error) {
	_, probs, err := p.Classify(ctx, vec)
	return probs, err
}

// Classify implements Classifier with one session run.
func (p *ONNX) Classify(ctx context.Context, vec model.FeatureVector) (string, []float64, error) {
	idx, probs, err := p.run(ctx, vec)
	if err != nil {
		return "", nil, err
	}
	if idx < 0 || idx >= int64(len(p.classes)) {
		return "", nil, fmt.Errorf("%w: %s: label index %d outside %d classes", ErrPrediction, p.target, idx, len(p.classes))
	}
	if len(probs) != len(p.classes) {
		return "", nil, fmt.Errorf("%w: %s: %d probabilities for %d classes", ErrPrediction, p.target, len(probs), len(p.classes))
	}
	return p.classes[idx], probs, nil
}

// run performs one single-row inference and returns the label index and
// the probability row.
func (p *ONNX) run(ctx context.Context, vec model.FeatureVector) (int64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if int64(vec.Len()) != p.width {
		return 0, nil, fmt.Errorf("%w: %s: vector has %d features, model expects %d", ErrPrediction, p.target, vec.Len(), p.width)
	}

	in, err := ort.NewTensor(ort.NewShape(1, p.width), vec.Float32())
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: create input tensor: %v", ErrPrediction, p.target, err)
	}
	defer in.Destroy()

	// nil outputs are allocated by the runtime and must be destroyed here.
	outs := []ort.Value{nil, nil}
	if err := p.session.Run([]ort.Value{in}, outs); err != nil {
		return 0, nil, fmt.Errorf("%w: %s: %v", ErrPrediction, p.target, err)
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	label, ok := outs[0].(*ort.Tensor[int64])
	if !ok || len(label.GetData()) == 0 {
		return 0, nil, fmt.Errorf("%w: %s: unexpected label output %T", ErrPrediction, p.target, outs[0])
	}
	probaT, ok := outs[1].(*ort.Tensor[float32])
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s: unexpected probability output %T", ErrPrediction, p.target, outs[1])
	}

	// Copy data out before the tensors are destroyed.
	src := probaT.GetData()
	probs := make([]float64, len(src))
	for i, v := range src {
		probs[i] = float64(v)
	}
	return label.GetData()[0], probs, nil
}

// Close releases the ONNX session resources.
func (p *ONNX) Close() error {
	return p.session.Destroy()
}
