// Package sqlite implements a structured audit log in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/output"
)

// timeLayout is fixed-width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var migrations = []string{`
CREATE TABLE IF NOT EXISTS inference_audit (
	id                     TEXT PRIMARY KEY,
	recorded_at            TEXT NOT NULL,
	observation            TEXT NOT NULL,
	diagnosis              TEXT NOT NULL,
	diagnosis_probability  REAL,
	severity               TEXT NOT NULL,
	severity_probability   REAL,
	management             TEXT NOT NULL,
	management_probability REAL
)`,
	`CREATE INDEX IF NOT EXISTS inference_audit_recorded_at ON inference_audit (recorded_at)`,
}

// Output writes one row per audit record to the inference_audit table.
type Output struct {
	db *sql.DB
}

// Entry is one row read back from the audit log.
type Entry struct {
	ID          string
	RecordedAt  time.Time
	Observation map[string]string
	Labels      [3]string   // Diagnosis, Severity, Management
	Probability [3]*float64 // nil where the stage produced no class
}

// Open creates or opens the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Output, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite output: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite output: open database: %w", err)
	}
	// One connection keeps :memory: databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite output: apply pragmas: %w", err)
	}
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite output: migrate: %w", err)
		}
	}
	return &Output{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Write inserts rec. A record without an ID gets a fresh UUID.
func (o *Output) Write(ctx context.Context, rec model.AuditRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	obs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("sqlite output: marshal observation: %w", err)
	}

	args := []any{id, rec.RecordedAt.UTC().Format(timeLayout), string(obs)}
	for _, r := range rec.Outcome.Results() {
		var p sql.NullFloat64
		if r.HasProbability() {
			p = sql.NullFloat64{Float64: r.Probability, Valid: true}
		}
		args = append(args, r.Label(), p)
	}

	_, err = o.db.ExecContext(ctx, `INSERT INTO inference_audit
		(id, recorded_at, observation, diagnosis, diagnosis_probability,
		 severity, severity_probability, management, management_probability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("sqlite output: insert %s: %w", id, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (o *Output) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := o.db.QueryContext(ctx, `SELECT id, recorded_at, observation,
		diagnosis, diagnosis_probability, severity, severity_probability,
		management, management_probability
		FROM inference_audit ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite output: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			ts    string
			obs   string
			probs [3]sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &ts, &obs,
			&e.Labels[0], &probs[0], &e.Labels[1], &probs[1], &e.Labels[2], &probs[2]); err != nil {
			return nil, fmt.Errorf("sqlite output: scan: %w", err)
		}
		if e.RecordedAt, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("sqlite output: parse time %q: %w", ts, err)
		}
		if err := json.Unmarshal([]byte(obs), &e.Observation); err != nil {
			return nil, fmt.Errorf("sqlite output: decode observation of %s: %w", e.ID, err)
		}
		for i, p := range probs {
			if p.Valid {
				v := p.Float64
				e.Probability[i] = &v
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (o *Output) Close() error {
	return o.db.Close()
}

var _ output.Output = (*Output)(nil)
