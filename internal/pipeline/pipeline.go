package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/appendix/internal/cascade"
	"github.com/crimson-sun/appendix/internal/engine"
	"github.com/crimson-sun/appendix/internal/engine/reconciler"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/output"
	"github.com/crimson-sun/appendix/internal/schema"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the timestamp source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDFunc overrides the record ID generator. Default: uuid.NewString.
func WithIDFunc(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// WithSecondary adds best-effort outputs written after the primary audit
// output succeeds. Their failures are logged and never returned.
func WithSecondary(outs ...output.Output) Option {
	return func(p *Pipeline) { p.secondary = append(p.secondary, outs...) }
}

// Pipeline connects the transform engine, the cascade and the audit output.
// Inferences are fully serialized: one record is prepared, classified and
// written before the next begins.
type Pipeline struct {
	mu        sync.Mutex
	engine    *engine.Engine
	cascade   *cascade.Controller
	output    output.Output
	secondary []output.Output
	now       func() time.Time
	newID     func() string
}

// New creates a Pipeline from the given components.
func New(eng *engine.Engine, ctl *cascade.Controller, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:  eng,
		cascade: ctl,
		output:  out,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Infer runs one observation through prepare → cascade → audit.
//
// A preparation failure produces an all-ERROR record that is still written.
// Input errors (a missing numeric attribute or a schema mismatch) are
// additionally returned to the caller after the row is written, as is a
// failure of the primary output.
func (p *Pipeline) Infer(ctx context.Context, obs model.Observation) (model.AuditRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.infer(ctx, obs, nil)
}

func (p *Pipeline) infer(ctx context.Context, obs model.Observation, parseErr error) (model.AuditRecord, error) {
	rec := model.InferenceRecord{
		ID:          p.newID(),
		RecordedAt:  p.now(),
		Observation: obs,
	}

	prepErr := parseErr
	if prepErr == nil {
		vec, err := p.engine.Prepare(obs)
		if err == nil {
			rec.Vector = &vec
		}
		prepErr = err
	}

	if prepErr != nil {
		slog.Error("observation could not be prepared", "record", rec.ID, "error", prepErr)
		rec.Outcome = cascade.Aborted(prepErr)
	} else {
		rec.Outcome = p.cascade.Run(ctx, *rec.Vector)
	}

	audit := output.Flatten(p.engine, rec)
	if err := p.output.Write(ctx, audit); err != nil {
		return audit, fmt.Errorf("pipeline output: %w", err)
	}
	for _, out := range p.secondary {
		if err := out.Write(ctx, audit); err != nil {
			slog.Warn("secondary output failed", "record", rec.ID, "error", err)
		}
	}
	slog.Info("inference recorded", "record", rec.ID,
		"diagnosis", rec.Outcome.Diagnosis.Label(),
		"severity", rec.Outcome.Severity.Label(),
		"management", rec.Outcome.Management.Label())

	if isInputError(prepErr) {
		return audit, fmt.Errorf("pipeline prepare: %w", prepErr)
	}
	return audit, nil
}

func isInputError(err error) bool {
	return errors.Is(err, schema.ErrMissingAttribute) || errors.Is(err, reconciler.ErrSchemaMismatch)
}

// InferTable processes a CSV of raw observations (header row of attribute
// names) sequentially, writing one audit row per input row. Rows that fail
// to parse or prepare are recorded as ERROR and reported in the returned
// error; an output failure stops processing.
func (p *Pipeline) InferTable(ctx context.Context, r io.Reader) ([]model.AuditRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("pipeline table: read header: %w", err)
	}

	cat := p.engine.Catalogue()
	var (
		records []model.AuditRecord
		errs    []error
	)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("pipeline table: line %d: %w", line, err)
		}

		raw := make(map[string]string, len(header))
		for i, h := range header {
			raw[h] = fields[i]
		}
		obs, parseErr := cat.ParseRecord(raw)
		if parseErr != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, parseErr))
			obs = model.NewObservation()
		}

		rec, err := p.infer(ctx, obs, parseErr)
		records = append(records, rec)
		if err != nil {
			if !isInputError(err) {
				return records, err
			}
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
		}
	}
	return records, errors.Join(errs...)
}

// Close shuts down every output.
func (p *Pipeline) Close() error {
	errs := []error{p.output.Close()}
	for _, out := range p.secondary {
		errs = append(errs, out.Close())
	}
	return errors.Join(errs...)
}
