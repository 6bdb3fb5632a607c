package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/appendix/internal/app"
	"github.com/crimson-sun/appendix/internal/config"
	"github.com/crimson-sun/appendix/internal/engine/scaler"
	"github.com/crimson-sun/appendix/internal/logging"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/predictor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the resolved configuration to every subcommand.
type cli struct {
	cfg     config.Config
	envFile string
	models  string
	audit   string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "appendix",
		Short:        "Pediatric appendicitis decision support",
		Long:         "appendix predicts diagnosis, severity and management for pediatric patients with suspected appendicitis and records every inference.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Path to a .env file seeding the environment")
	root.PersistentFlags().StringVar(&c.models, "models", "", "Models directory (overrides APPENDIX_MODELS_DIR)")
	root.PersistentFlags().StringVar(&c.audit, "audit", "", "CSV audit table path (overrides APPENDIX_AUDIT_PATH)")

	root.AddCommand(c.fitCmd())
	root.AddCommand(c.inferCmd())
	root.AddCommand(c.serveCmd())
	root.AddCommand(c.schemaCmd())
	root.AddCommand(c.historyCmd())
	return root
}

func (c *cli) setup() error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return err
	}
	c.cfg = config.Load()
	if c.models != "" {
		c.cfg.Models.Dir = c.models
		if os.Getenv("APPENDIX_ORT_LIB") == "" {
			c.cfg.Models.RuntimeLib = filepath.Join(c.models, "libonnxruntime.so")
		}
	}
	if c.audit != "" {
		c.cfg.Audit.Path = c.audit
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	logging.Init(c.cfg.Audit.Stdout, logging.ParseLevel(c.cfg.Logging.Level))
	return nil
}

// reportUnavailable prints what is missing and how to produce it.
func reportUnavailable(a *app.App, cfg config.Config) {
	if !a.Engine.HasScaler() {
		fmt.Fprintf(os.Stderr, "appendix: no scaler at %s; run `appendix fit --data <training table.csv>` first\n",
			scaler.Path(cfg.Models.Dir))
	}
	avail := a.Predictors.Available()
	for _, stage := range model.Stages() {
		if avail[stage] {
			continue
		}
		fmt.Fprintf(os.Stderr, "appendix: %s model unavailable (%s); export its table with `appendix fit --export <dir>`, train it, and place the model and its .classes.json file in %s\n",
			stage, predictor.ArtifactPath(cfg.Models.Dir, stage), cfg.Models.Dir)
	}
}
