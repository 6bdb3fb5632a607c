// Package training reads the finalized ETL table and produces the artifacts
// an external trainer needs: the fitted scaler and one encoded matrix per
// cascade target. Model fitting itself happens outside this module.
package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/crimson-sun/appendix/internal/engine"
	"github.com/crimson-sun/appendix/internal/engine/scaler"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/schema"
)

// ErrInvalidTable is returned when the training table is missing columns
// or values.
var ErrInvalidTable = errors.New("invalid training table")

// Row is one labelled patient of the training table.
type Row struct {
	Observation model.Observation
	Targets     map[model.Stage]string
}

// ReadTable reads a CSV training table. The header must name every
// catalogue attribute and the three target columns; extra columns are
// ignored. Numeric attributes and targets must be present in every row.
func ReadTable(r io.Reader, cat *schema.Catalogue) ([]Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("training: read header: %w", err)
	}

	var missing []string
	for _, a := range cat.Attributes() {
		if !slices.Contains(header, a.Name) {
			missing = append(missing, a.Name)
		}
	}
	for _, st := range model.Stages() {
		if !slices.Contains(header, string(st)) {
			missing = append(missing, string(st))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: header lacks %q", ErrInvalidTable, missing)
	}

	var rows []Row
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("training: line %d: %w", line, err)
		}
		raw := make(map[string]string, len(header))
		for i, h := range header {
			raw[h] = fields[i]
		}

		obs, err := cat.ParseRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("training: line %d: %w", line, err)
		}
		obs = cat.ApplyDefaults(obs)
		if err := cat.CheckComplete(obs); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidTable, line, err)
		}

		targets := make(map[model.Stage]string, 3)
		for _, st := range model.Stages() {
			v := schema.NormalizeCategory(raw[string(st)])
			if v == "" {
				return nil, fmt.Errorf("%w: line %d: empty %s", ErrInvalidTable, line, st)
			}
			targets[st] = v
		}
		rows = append(rows, Row{Observation: obs, Targets: targets})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidTable)
	}
	return rows, nil
}

// FitScaler fits the min-max scaler over the numeric attributes of rows and
// saves it to path.
func FitScaler(rows []Row, cat *schema.Catalogue, path string) (*scaler.FittedScaler, error) {
	values := make([]map[string]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Observation.Numeric
	}
	sc, err := scaler.Fit(cat.NumericNames(), values)
	if err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	if err := sc.Save(path); err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	slog.Info("scaler fitted", "artifact", path, "rows", len(rows), "attributes", len(sc.Names()))
	return sc, nil
}

// Select returns the rows that belong to target's training table: rows
// whose Diagnosis is the positive class for positive-only targets, minus
// rows labelled with an excluded class.
func Select(rows []Row, cat *schema.Catalogue, target model.Stage) ([]Row, error) {
	t, ok := cat.Target(target)
	if !ok {
		return nil, fmt.Errorf("training: unknown target %q", target)
	}
	var out []Row
	for _, r := range rows {
		if t.PositiveOnly && r.Targets[model.StageDiagnosis] != cat.PositiveClass() {
			continue
		}
		if slices.Contains(t.Exclude, r.Targets[target]) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Export writes target's encoded training matrix as CSV: the canonical
// feature columns followed by the target column. Columns of the other
// targets are never written. It returns the number of data rows.
func Export(w io.Writer, rows []Row, eng *engine.Engine, target model.Stage) (int, error) {
	cat := eng.Catalogue()
	selected, err := Select(rows, cat, target)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	header := append(cat.Schema().Columns(), string(target))
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("training: write header: %w", err)
	}

	record := make([]string, len(header))
	for i, r := range selected {
		vec, err := eng.Prepare(r.Observation)
		if err != nil {
			return i, fmt.Errorf("training: export %s row %d: %w", target, i, err)
		}
		for j, v := range vec.Values() {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		record[len(record)-1] = r.Targets[target]
		if err := cw.Write(record); err != nil {
			return i, fmt.Errorf("training: write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return len(selected), fmt.Errorf("training: flush: %w", err)
	}
	slog.Info("training matrix exported", "target", target, "rows", len(selected))
	return len(selected), nil
}
