package appendix

import (
	"context"
	"fmt"
	"io"

	"github.com/crimson-sun/appendix/internal/app"
	"github.com/crimson-sun/appendix/internal/config"
	"github.com/crimson-sun/appendix/internal/model"
)

// Client runs the inference cascade and records every result.
type Client struct {
	app *app.App
}

// Open loads the scaler and stage models and opens the audit outputs.
// Missing models do not fail Open; the affected stages report ERROR or N/A.
func Open(ctx context.Context, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Config{
		Models:  config.ModelsConfig{Dir: o.modelDir, RuntimeLib: resolveRuntimeLib(o)},
		Audit:   config.AuditConfig{Path: o.auditPath, DB: o.auditDB},
		Engine:  config.EngineConfig{UnknownCategory: o.unknownPolicy},
		Logging: config.LoggingConfig{Level: "info"},
	}
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("appendix: %w", err)
	}
	return &Client{app: a}, nil
}

// Infer classifies one observation. The result is recorded even when an
// error is returned alongside it.
func (c *Client) Infer(ctx context.Context, obs Observation) (Result, error) {
	rec, err := c.app.Pipeline.Infer(ctx, obs.internal())
	return resultFromAudit(rec), err
}

// InferTable classifies every row of a CSV table of observations whose
// header names the attributes.
func (c *Client) InferTable(ctx context.Context, r io.Reader) ([]Result, error) {
	recs, err := c.app.Pipeline.InferTable(ctx, r)
	out := make([]Result, len(recs))
	for i, rec := range recs {
		out[i] = resultFromAudit(rec)
	}
	return out, err
}

// Columns returns the canonical feature columns the models expect.
func (c *Client) Columns() []string {
	return c.app.Catalogue.Schema().Columns()
}

// Available reports which cascade stages have a loaded model.
func (c *Client) Available() map[string]bool {
	out := make(map[string]bool, len(model.Stages()))
	for st, ok := range c.app.Predictors.Available() {
		out[string(st)] = ok
	}
	return out
}

// Close releases model resources and closes the audit outputs.
func (c *Client) Close() error {
	return c.app.Close()
}
