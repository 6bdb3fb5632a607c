package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/output/csvfile"
	"github.com/crimson-sun/appendix/internal/output/sqlite"
	"github.com/crimson-sun/appendix/internal/report"
)

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent recorded inferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Audit.DB != "" {
				return c.historyDB(cmd, limit)
			}
			return c.historyCSV(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of records to show")
	return cmd
}

func (c *cli) historyDB(cmd *cobra.Command, limit int) error {
	db, err := sqlite.Open(cmd.Context(), c.cfg.Audit.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	styles := report.DefaultStyles()
	for _, e := range entries {
		parts := make([]string, len(e.Labels))
		for i, label := range e.Labels {
			parts[i] = styledLabel(label)
			if p := e.Probability[i]; p != nil {
				parts[i] += " " + styles.Muted.Render(report.Percent(*p))
			}
		}
		fmt.Printf("%s  %s  %s\n", styles.Muted.Render(e.RecordedAt.Local().Format("2006-01-02 15:04:05")), e.ID, strings.Join(parts, " / "))
	}
	return nil
}

// historyCSV shows the tail of the audit table. Stage columns are the last
// three fields of each row.
func (c *cli) historyCSV(limit int) error {
	_, rows, err := csvfile.ReadAll(c.cfg.Audit.Path)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("no inferences recorded in %s\n", c.cfg.Audit.Path)
		return nil
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	n := len(model.Stages())
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < n {
			continue
		}
		labels := row[len(row)-n:]
		parts := make([]string, n)
		for j, label := range labels {
			parts[j] = styledLabel(label)
		}
		fmt.Println(strings.Join(parts, " / "))
	}
	return nil
}

func styledLabel(label string) string {
	return report.Style(label).Render(label)
}
