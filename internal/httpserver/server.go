// Package httpserver exposes the operator-facing surface: the websocket
// handshake for push sessions, health probes and Prometheus metrics. All
// record-store CRUD lives in a separate service.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Zain-surge/thevillage-backend/internal/broadcast"
	"github.com/Zain-surge/thevillage-backend/internal/config"
	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

// HealthCheck is a named readiness probe for a backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	hub    *broadcast.Hub
	scopes domain.ScopeResolver

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, hub *broadcast.Hub, scopes domain.ScopeResolver, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		hub:          hub,
		scopes:       scopes,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
