// Package output defines the audit sinks an inference record is written to.
package output

import (
	"context"

	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/schema"
)

// Output defines the interface for audit record destinations.
type Output interface {
	Write(ctx context.Context, rec model.AuditRecord) error
	Close() error
}

// Header returns the audit table header: the catalogue's audit columns
// followed by the three stage columns.
func Header(cat *schema.Catalogue) []string {
	h := cat.AuditColumns()
	for _, st := range model.Stages() {
		h = append(h, string(st))
	}
	return h
}

// Row renders rec in Header order. Attributes with no value are empty.
func Row(cat *schema.Catalogue, rec model.AuditRecord) []string {
	cols := cat.AuditColumns()
	row := make([]string, 0, len(cols)+3)
	for _, c := range cols {
		row = append(row, rec.Attributes[c])
	}
	for _, r := range rec.Outcome.Results() {
		row = append(row, r.Label())
	}
	return row
}
