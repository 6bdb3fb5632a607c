// Package engine holds the transform context shared by every inference:
// conditional defaults, categorical encoding, numeric scaling and schema
// reconciliation, plus the inverse path used for display.
package engine

import (
	"fmt"

	"github.com/crimson-sun/appendix/internal/engine/encoder"
	"github.com/crimson-sun/appendix/internal/engine/reconciler"
	"github.com/crimson-sun/appendix/internal/engine/scaler"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/schema"
)

// Engine orchestrates the defaults → encode → scale → reconcile transform.
// It is immutable after New and safe for concurrent use.
type Engine struct {
	catalogue  *schema.Catalogue
	scaler     *scaler.FittedScaler
	encoder    *encoder.Encoder
	reconciler *reconciler.Reconciler
}

// New creates an Engine. sc may be nil when no scaler artifact has been
// fitted yet; Prepare then fails with scaler.ErrMissingArtifact.
func New(cat *schema.Catalogue, sc *scaler.FittedScaler, policy encoder.UnknownPolicy) (*Engine, error) {
	if sc != nil {
		for _, name := range cat.NumericNames() {
			if _, ok := sc.Range(name); !ok {
				return nil, fmt.Errorf("engine: scaler has no range for numeric attribute %q", name)
			}
		}
	}
	return &Engine{
		catalogue:  cat,
		scaler:     sc,
		encoder:    encoder.New(cat, policy),
		reconciler: reconciler.New(cat),
	}, nil
}

// Catalogue returns the catalogue the engine was built for.
func (e *Engine) Catalogue() *schema.Catalogue { return e.catalogue }

// HasScaler reports whether a fitted scaler is loaded.
func (e *Engine) HasScaler() bool { return e.scaler != nil }

// Prepare turns a raw observation into a model-ready FeatureVector. A
// numeric attribute still absent after defaults fails with
// schema.ErrMissingAttribute.
func (e *Engine) Prepare(obs model.Observation) (model.FeatureVector, error) {
	if e.scaler == nil {
		return model.FeatureVector{}, fmt.Errorf("engine: prepare: %w", scaler.ErrMissingArtifact)
	}
	obs = e.catalogue.ApplyDefaults(obs)
	if err := e.catalogue.CheckComplete(obs); err != nil {
		return model.FeatureVector{}, fmt.Errorf("engine: prepare: %w", err)
	}

	indicators, err := e.encoder.Encode(obs.Categorical)
	if err != nil {
		return model.FeatureVector{}, fmt.Errorf("engine: encode: %w", err)
	}

	row := e.scaler.Apply(obs.Numeric)
	for k, v := range indicators {
		row[k] = v
	}

	vec, err := e.reconciler.Reconcile(row)
	if err != nil {
		return model.FeatureVector{}, fmt.Errorf("engine: reconcile: %w", err)
	}
	return vec, nil
}

// Restore renders a FeatureVector back in original units and category
// labels, keyed by attribute name. It is used for audit and display only.
func (e *Engine) Restore(vec model.FeatureVector) map[string]string {
	cols := vec.Map()
	numeric := make(map[string]float64)
	for _, name := range e.catalogue.NumericNames() {
		if v, ok := cols[name]; ok {
			numeric[name] = v
		}
	}
	if e.scaler != nil {
		numeric = e.scaler.Invert(numeric)
	}

	out := e.encoder.Decode(cols)
	for name, v := range numeric {
		out[name] = schema.FormatNumber(v)
	}
	return out
}
