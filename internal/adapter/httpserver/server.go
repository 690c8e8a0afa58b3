// Package httpserver is the gateway's HTTP surface: layer editing, preset
// management, metadata proxying, health, and the UI push endpoint.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/H0onnn/InvokeAI/internal/adapter/metaapi"
	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/platform/config"
)

type layerStore interface {
	Dispatch(e domain.Event)
	Layer(id uuid.UUID) (domain.ControlLayer, bool)
	Layers() []domain.ControlLayer
}

type metaService interface {
	GetVersion(ctx context.Context) (metaapi.Version, error)
	GetAppDeps(ctx context.Context) (map[string]string, error)
	GetAppConfig(ctx context.Context) (metaapi.AppConfig, error)
	GetInvocationCacheStatus(ctx context.Context) (metaapi.InvocationCacheStatus, error)
	ClearInvocationCache(ctx context.Context) error
	EnableInvocationCache(ctx context.Context) error
	DisableInvocationCache(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	store   layerStore
	presets domain.PresetRepository
	meta    metaService

	websocketHandler http.Handler
	healthChecks     []HealthCheck
	startTime        time.Time
}

func NewServer(cfg *config.Config, store layerStore, presets domain.PresetRepository, meta metaService, websocketHandler http.Handler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		store:            store,
		presets:          presets,
		meta:             meta,
		websocketHandler: websocketHandler,
		healthChecks:     healthChecks,
		startTime:        time.Now(),
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
