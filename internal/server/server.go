// Package server exposes the inference pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/crimson-sun/appendix/internal/engine/reconciler"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/output"
	"github.com/crimson-sun/appendix/internal/schema"
)

const maxBodyBytes = 1 << 20

// Inferer runs one observation through the cascade and records it.
type Inferer interface {
	Infer(ctx context.Context, obs model.Observation) (model.AuditRecord, error)
}

// Option configures a Server.
type Option func(*Server)

// WithAvailability reports per-stage predictor availability on /healthz.
func WithAvailability(fn func() map[model.Stage]bool) Option {
	return func(s *Server) { s.available = fn }
}

// Server serves the HTTP API.
type Server struct {
	catalogue *schema.Catalogue
	validator *schema.Validator
	inferer   Inferer
	available func() map[model.Stage]bool
	router    *gin.Engine
}

// New builds a Server and its routes.
func New(cat *schema.Catalogue, inf Inferer, opts ...Option) (*Server, error) {
	v, err := cat.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s := &Server{catalogue: cat, validator: v, inferer: inf}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		limitBodySize(maxBodyBytes),
	)

	router.GET("/healthz", s.healthz)
	router.GET("/v1/schema", s.schema)
	router.POST("/v1/inferences", s.infer)
	return router
}

func (s *Server) healthz(c *gin.Context) {
	body := gin.H{"status": "ok", "catalogue": s.catalogue.Version()}
	if s.available != nil {
		stages := gin.H{}
		degraded := false
		for st, ok := range s.available() {
			stages[string(st)] = ok
			if !ok {
				degraded = true
			}
		}
		body["models"] = stages
		if degraded {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) schema(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalogue.JSONSchema())
}

func (s *Server) infer(c *gin.Context) {
	doc, err := jsonschema.UnmarshalJSON(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := s.validator.Validate(doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
		return
	}
	fields, ok := doc.(map[string]any)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "observation must be a JSON object"})
		return
	}
	obs, err := s.catalogue.ParseObservation(fields)
	if err == nil {
		err = s.catalogue.CheckComplete(s.catalogue.ApplyDefaults(obs))
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
		return
	}

	rec, err := s.inferer.Infer(c.Request.Context(), obs)
	switch {
	case errors.Is(err, schema.ErrMissingAttribute):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error(), "record": output.NewDocument(rec)})
	case errors.Is(err, reconciler.ErrSchemaMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "record": output.NewDocument(rec)})
	case err != nil:
		slog.Error("inference failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit write failed"})
	case rec.Outcome.Fatal():
		c.JSON(http.StatusServiceUnavailable, output.NewDocument(rec))
	default:
		c.JSON(http.StatusOK, output.NewDocument(rec))
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: graceful shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
