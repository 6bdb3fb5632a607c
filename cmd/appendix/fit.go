package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/appendix/internal/engine"
	"github.com/crimson-sun/appendix/internal/engine/scaler"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/schema"
	"github.com/crimson-sun/appendix/internal/training"
)

func (c *cli) fitCmd() *cobra.Command {
	var data, export string
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the scaler from a training table and export per-target matrices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runFit(data, export)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Finalized training table (CSV)")
	cmd.Flags().StringVar(&export, "export", "", "Directory to write the encoded training matrix of each target")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (c *cli) runFit(data, export string) error {
	cat, err := schema.Default()
	if err != nil {
		return err
	}

	f, err := os.Open(data)
	if err != nil {
		return fmt.Errorf("open training table: %w", err)
	}
	defer f.Close()

	rows, err := training.ReadTable(f, cat)
	if err != nil {
		return err
	}

	path := scaler.Path(c.cfg.Models.Dir)
	sc, err := training.FitScaler(rows, cat, path)
	if err != nil {
		return err
	}
	fmt.Printf("scaler fitted over %d rows, saved to %s\n", len(rows), path)

	if export == "" {
		return nil
	}
	eng, err := engine.New(cat, sc, c.cfg.Policy())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(export, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	for _, st := range model.Stages() {
		out := filepath.Join(export, "train_"+string(st)+".csv")
		n, err := exportTarget(out, rows, eng, st)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d rows written to %s\n", st, n, out)
	}
	return nil
}

func exportTarget(path string, rows []training.Row, eng *engine.Engine, st model.Stage) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := training.Export(f, rows, eng, st)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", path, cerr)
	}
	return n, err
}
