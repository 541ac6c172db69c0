// Package transport binds the orchestration operations to HTTP. It is a
// thin adapter: all semantics live in the orchestrator facade.
package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Hipson47/Worm/internal/orchestrator"
	"github.com/Hipson47/Worm/internal/planner"
)

// Server exposes the orchestrator over HTTP/JSON.
type Server struct {
	echo   *echo.Echo
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// New creates the HTTP server and registers routes.
func New(orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, orch: orch, logger: logger}

	e.GET("/healthz", s.handleStatus)
	e.POST("/v1/rules/select", s.handleSelectRules)
	e.POST("/v1/plans", s.handleGeneratePlan)
	e.POST("/v1/orchestrate", s.handleOrchestrate)
	e.POST("/v1/knowledge/query", s.handleQueryKnowledge)

	return s
}

// Start serves until Shutdown or a fatal listener error.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type taskRequest struct {
	Task    string            `json:"task"`
	Context map[string]string `json:"context"`
}

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type planResponse struct {
	Stages []planner.Stage `json:"stages"`
	Source string          `json:"source"`
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Status())
}

func (s *Server) handleSelectRules(c echo.Context) error {
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sel, err := s.orch.SelectRules(c.Request().Context(), req.Task, req.Context)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sel)
}

func (s *Server) handleGeneratePlan(c echo.Context) error {
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := s.orch.Orchestrate(c.Request().Context(), req.Task, req.Context)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, planResponse{
		Stages: result.Plan.Stages,
		Source: string(result.Selection.Source),
	})
}

func (s *Server) handleOrchestrate(c echo.Context) error {
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := s.orch.Orchestrate(c.Request().Context(), req.Task, req.Context)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleQueryKnowledge(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := s.orch.QueryKnowledge(c.Request().Context(), req.Question, req.K)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}
