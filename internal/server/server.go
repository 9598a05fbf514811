// Package server exposes the daemon's local HTTP API: the query surface
// the CLI and desktop shell call, a health check, and Prometheus
// metrics. The listener binds loopback only; nothing here is meant to
// leave the machine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/rag"
	"github.com/unified-ai/core/internal/retrieval"
	"github.com/unified-ai/core/internal/storage"
)

// Config for the HTTP server.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Server serves queries over the store.
type Server struct {
	echo         *echo.Echo
	cfg          Config
	store        *storage.Store
	engine       *retrieval.Engine
	orchestrator *rag.Orchestrator
	logger       *zap.Logger
}

// New wires routes over the retrieval engine and orchestrator.
func New(cfg Config, store *storage.Store, engine *retrieval.Engine, orchestrator *rag.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:         e,
		cfg:          cfg,
		store:        store,
		engine:       engine,
		orchestrator: orchestrator,
		logger:       logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.GET("/search", s.handleSearch)
	api.GET("/semantic-search", s.handleSemanticSearch)
	api.GET("/timeline", s.handleTimeline)
	api.GET("/entities", s.handleEntities)
	api.GET("/people", s.handlePeople)
	api.GET("/organizations", s.handleOrganizations)
	api.GET("/relationships", s.handleRelationships)
	api.GET("/clipboard", s.handleClipboard)
	api.GET("/stats", s.handleStats)
	api.POST("/ask", s.handleAsk)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.logger.Info("http api listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("http api stopped")
	return ctx.Err()
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query parameter q")
	}
	results, err := s.engine.Search(c.Request().Context(), query,
		storage.Source(c.QueryParam("source")), intParam(c, "limit", 20))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orEmpty(results))
}

func (s *Server) handleSemanticSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query parameter q")
	}
	results, err := s.engine.SemanticSearch(c.Request().Context(), query, intParam(c, "limit", 20))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orEmpty(results))
}

func (s *Server) handleTimeline(c echo.Context) error {
	records, err := s.engine.Timeline(c.Request().Context(),
		intParam(c, "days", 7),
		storage.Source(c.QueryParam("source")),
		intParam(c, "limit", 100))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orEmpty(records))
}

func (s *Server) handleEntities(c echo.Context) error {
	mentions, err := s.engine.Entities(c.Request().Context(),
		storage.EntityKind(c.QueryParam("kind")), intParam(c, "limit", 100))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orEmpty(mentions))
}

func (s *Server) handlePeople(c echo.Context) error {
	people, err := s.engine.People(c.Request().Context(), intParam(c, "limit", 50))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orEmpty(people))
}

func (s *Server) handleOrganizations(c echo.Context) error {
	orgs, err := s.engine.Organizations(c.Request().Context(), intParam(c, "limit", 50))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orEmpty(orgs))
}

func (s *Server) handleRelationships(c echo.Context) error {
	nodes, edges, err := s.engine.Relationships(c.Request().Context(), intParam(c, "limit", 50))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"nodes": orEmpty(nodes),
		"edges": orEmpty(edges),
	})
}

func (s *Server) handleClipboard(c echo.Context) error {
	entries, err := s.store.RecentClipboardEntries(c.Request().Context(),
		storage.ClipboardType(c.QueryParam("type")), intParam(c, "limit", 20))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orEmpty(entries))
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

type askRequest struct {
	Question string `json:"question"`
	Planned  bool   `json:"planned"`
}

func (s *Server) handleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil || req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing question")
	}
	ctx := c.Request().Context()

	if req.Planned {
		answer, err := s.orchestrator.QueryPlanned(ctx, req.Question)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, answer)
	}
	answer, err := s.orchestrator.Query(ctx, req.Question)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, answer)
}

func intParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// orEmpty keeps JSON arrays as [] instead of null for empty results.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
