// Package app wires configuration into a ready inference pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crimson-sun/appendix/internal/cascade"
	"github.com/crimson-sun/appendix/internal/config"
	"github.com/crimson-sun/appendix/internal/engine"
	"github.com/crimson-sun/appendix/internal/engine/scaler"
	"github.com/crimson-sun/appendix/internal/output"
	"github.com/crimson-sun/appendix/internal/output/async"
	"github.com/crimson-sun/appendix/internal/output/csvfile"
	"github.com/crimson-sun/appendix/internal/output/multi"
	"github.com/crimson-sun/appendix/internal/output/sqlite"
	"github.com/crimson-sun/appendix/internal/output/stdout"
	"github.com/crimson-sun/appendix/internal/output/webhook"
	"github.com/crimson-sun/appendix/internal/pipeline"
	"github.com/crimson-sun/appendix/internal/predictor"
	"github.com/crimson-sun/appendix/internal/schema"
)

// App holds the loaded components of one inference process.
type App struct {
	Catalogue  *schema.Catalogue
	Engine     *engine.Engine
	Predictors *predictor.Set
	Pipeline   *pipeline.Pipeline
	Audit      *csvfile.Output
	History    *sqlite.Output // nil unless an audit database is configured
}

// Open loads the scaler and stage models named by cfg and opens the audit
// outputs. Missing artifacts do not fail Open: the affected stages record
// ERROR or N/A and a message saying how to produce the artifact is logged.
// Audit outputs that cannot be opened are returned as errors.
func Open(ctx context.Context, cfg config.Config, opts ...pipeline.Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: config: %w", err)
	}
	cat, err := schema.Default()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	sc, err := scaler.Load(scaler.Path(cfg.Models.Dir))
	switch {
	case errors.Is(err, scaler.ErrMissingArtifact):
		slog.Error("scaler artifact missing; every inference will record ERROR",
			"path", scaler.Path(cfg.Models.Dir),
			"hint", "run `appendix fit --data <training table.csv>` to fit and save it")
		sc = nil
	case err != nil:
		return nil, fmt.Errorf("app: %w", err)
	}

	eng, err := engine.New(cat, sc, cfg.Policy())
	if err != nil {
		slog.Error("scaler artifact does not match the catalogue",
			"path", scaler.Path(cfg.Models.Dir), "error", err,
			"hint", "refit with `appendix fit` against the current training table")
		return nil, fmt.Errorf("app: %w", err)
	}

	set, err := predictor.LoadSet(ctx, cfg.Models.Dir, cfg.Models.RuntimeLib, cat.Schema().Len())
	switch {
	case errors.Is(err, predictor.ErrRuntimeUnavailable):
		slog.Error("ONNX Runtime could not be loaded; all stages are unavailable",
			"lib", cfg.Models.RuntimeLib, "error", err,
			"hint", "install onnxruntime and point APPENDIX_ORT_LIB at the shared library")
		set = predictor.NewSet()
	case err != nil:
		return nil, fmt.Errorf("app: %w", err)
	}

	audit, secondary, history, err := openOutputs(ctx, cfg, cat)
	if err != nil {
		set.Close()
		return nil, err
	}
	if len(secondary) > 0 {
		opts = append(opts, pipeline.WithSecondary(multi.New(secondary...)))
	}

	ctl := cascade.New(set, cat.PositiveClass())
	return &App{
		Catalogue:  cat,
		Engine:     eng,
		Predictors: set,
		Pipeline:   pipeline.New(eng, ctl, audit, opts...),
		Audit:      audit,
		History:    history,
	}, nil
}

// openOutputs opens the CSV audit table, which is the system of record, and
// the configured secondary sinks.
func openOutputs(ctx context.Context, cfg config.Config, cat *schema.Catalogue) (*csvfile.Output, []output.Output, *sqlite.Output, error) {
	audit, err := csvfile.New(cfg.Audit.Path, cat)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("app: %w", err)
	}

	var history *sqlite.Output
	if cfg.Audit.DB != "" {
		history, err = sqlite.Open(ctx, cfg.Audit.DB)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("app: %w", err)
		}
	}

	var outs []output.Output
	if history != nil {
		outs = append(outs, history)
	}
	if cfg.Audit.Stdout {
		outs = append(outs, stdout.New(false))
	}
	if cfg.Audit.WebhookURL != "" {
		hook := webhook.New(cfg.Audit.WebhookURL, webhook.WithBearerToken(cfg.Audit.WebhookToken))
		outs = append(outs, async.New(hook, async.WithDropOnFull()))
	}
	return audit, outs, history, nil
}

// Close releases the models and closes every output.
func (a *App) Close() error {
	return errors.Join(a.Pipeline.Close(), a.Predictors.Close())
}
