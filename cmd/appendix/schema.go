package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/appendix/internal/schema"
)

func (c *cli) schemaCmd() *cobra.Command {
	var columns bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the observation JSON Schema or the canonical feature columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := schema.Default()
			if err != nil {
				return err
			}
			if columns {
				for i, col := range cat.Schema().Columns() {
					fmt.Printf("%2d  %s\n", i, col)
				}
				return nil
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cat.JSONSchema())
		},
	}
	cmd.Flags().BoolVar(&columns, "columns", false, "List the canonical feature columns in model order")
	return cmd
}
