package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/appendix/internal/app"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/report"
	"github.com/crimson-sun/appendix/internal/schema"
)

func (c *cli) inferCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run the cascade on observations from a JSON or CSV file",
		Long:  "Run the cascade on one JSON observation, a JSON array of observations, or a CSV table with a header of attribute names. Use - to read JSON from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.runInfer(ctx, input)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Observation file (.json or .csv), or - for stdin")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (c *cli) runInfer(ctx context.Context, input string) error {
	a, err := app.Open(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	reportUnavailable(a, c.cfg)

	r, closeInput, err := openInput(input)
	if err != nil {
		return err
	}
	defer closeInput()

	var recs []model.AuditRecord
	if strings.EqualFold(filepath.Ext(input), ".csv") {
		recs, err = a.Pipeline.InferTable(ctx, r)
	} else {
		recs, err = inferJSON(ctx, a, r)
	}

	styles := report.DefaultStyles()
	w := os.Stdout
	if c.cfg.Audit.Stdout {
		w = os.Stderr
	}
	for _, rec := range recs {
		fmt.Fprintln(w, report.Render(rec, styles))
	}
	if len(recs) > 1 {
		fmt.Fprintln(w, report.Summary(recs, styles))
	}
	if len(recs) > 0 {
		fmt.Fprintf(os.Stderr, "appendix: %d record(s) appended to %s\n", len(recs), c.cfg.Audit.Path)
	}
	return err
}

func openInput(input string) (io.Reader, func(), error) {
	if input == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// inferJSON accepts one object or an array of objects. Each is validated
// against the catalogue schema before it reaches the pipeline.
func inferJSON(ctx context.Context, a *app.App, r io.Reader) ([]model.AuditRecord, error) {
	doc, err := jsonschema.UnmarshalJSON(r)
	if err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	docs, ok := doc.([]any)
	if !ok {
		docs = []any{doc}
	}

	v, err := a.Catalogue.NewValidator()
	if err != nil {
		return nil, err
	}

	var (
		recs []model.AuditRecord
		errs []error
	)
	for i, d := range docs {
		obs, err := parseDocument(a.Catalogue, v, d)
		if err != nil {
			errs = append(errs, fmt.Errorf("observation %d: %w", i, err))
			continue
		}
		rec, err := a.Pipeline.Infer(ctx, obs)
		recs = append(recs, rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("observation %d: %w", i, err))
		}
	}
	return recs, errors.Join(errs...)
}

func parseDocument(cat *schema.Catalogue, v *schema.Validator, doc any) (model.Observation, error) {
	if err := v.Validate(doc); err != nil {
		return model.Observation{}, err
	}
	fields, ok := doc.(map[string]any)
	if !ok {
		return model.Observation{}, fmt.Errorf("%w: want a JSON object", schema.ErrInvalidValue)
	}
	return cat.ParseObservation(fields)
}
