package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/appendix/internal/app"
	"github.com/crimson-sun/appendix/internal/server"
)

func (c *cli) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inference API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				c.cfg.Server.Listen = listen
			}
			return c.runServe(cmd)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides APPENDIX_LISTEN)")
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command) error {
	mode := os.Getenv("GIN_MODE")
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	reportUnavailable(a, c.cfg)

	srv, err := server.New(a.Catalogue, a.Pipeline, server.WithAvailability(a.Predictors.Available))
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, c.cfg.Server.Listen)
}
