// Package server exposes the conversational agent over HTTP.
package server

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/agent/core"
	"github.com/biocortex/hypothesis/internal/agent/telemetry"
	"github.com/biocortex/hypothesis/internal/store"
)

// Server routes chat, auth, and operational endpoints. The store may be nil
// when persistence is disabled; auth endpoints then return 503.
type Server struct {
	echo      *echo.Echo
	orch      *core.Orchestrator
	store     *store.Store
	jwtSecret []byte
	logger    *log.Logger
}

func New(cfg config.ServerConfig, orch *core.Orchestrator, st *store.Store, tel *telemetry.Telemetry, logger *log.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := "internal error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Printf("[SERVER] %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
		}
		if !c.Response().Committed {
			c.JSON(code, httpError{Error: msg})
		}
	}

	s := &Server{
		echo:      e,
		orch:      orch,
		store:     st,
		jwtSecret: []byte(cfg.JWTSecret),
		logger:    logger,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if tel != nil {
		e.GET("/metrics", echo.WrapHandler(tel.Handler()))
	}

	auth := e.Group("/api/auth")
	auth.POST("/signup", s.requireStore(s.handleSignup))
	auth.POST("/login", s.requireStore(s.handleLogin))
	auth.POST("/logout", s.handleLogout)

	api := e.Group("/api")
	if cfg.AuthEnabled {
		api.Use(authMiddleware(s.jwtSecret))
	}
	api.POST("/chat", s.handleChat)
	api.GET("/sessions/:id/turns", s.requireStore(s.handleListTurns))

	return s
}

// requireStore guards handlers that need the persistence layer.
func (s *Server) requireStore(h echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.store == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "persistence is disabled")
		}
		return h(c)
	}
}

func (s *Server) Start(address string) error {
	s.logger.Printf("[SERVER] listening on %s", address)
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }
