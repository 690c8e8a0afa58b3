package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/H0onnn/InvokeAI/internal/errors"
)

func (s *Server) registerMetaRoutes() {
	s.echo.GET("/api/app/version", s.handleAppVersion)
	s.echo.GET("/api/app/app_deps", s.handleAppDeps)
	s.echo.GET("/api/app/config", s.handleAppConfig)
	s.echo.GET("/api/app/invocation_cache/status", s.handleInvocationCacheStatus)
	s.echo.DELETE("/api/app/invocation_cache", s.handleClearInvocationCache)
	s.echo.PUT("/api/app/invocation_cache/enable", s.handleEnableInvocationCache)
	s.echo.PUT("/api/app/invocation_cache/disable", s.handleDisableInvocationCache)
}

func (s *Server) handleAppVersion(c echo.Context) error {
	v, err := s.meta.GetVersion(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to get backend version", err)
	}
	if err := c.JSON(http.StatusOK, v); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAppDeps(c echo.Context) error {
	deps, err := s.meta.GetAppDeps(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to get backend dependencies", err)
	}
	if err := c.JSON(http.StatusOK, deps); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAppConfig(c echo.Context) error {
	cfg, err := s.meta.GetAppConfig(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to get backend config", err)
	}
	if err := c.JSON(http.StatusOK, cfg); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleInvocationCacheStatus(c echo.Context) error {
	status, err := s.meta.GetInvocationCacheStatus(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to get invocation cache status", err)
	}
	if err := c.JSON(http.StatusOK, status); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleClearInvocationCache(c echo.Context) error {
	if err := s.meta.ClearInvocationCache(c.Request().Context()); err != nil {
		return apperrors.ExternalError("failed to clear invocation cache", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleEnableInvocationCache(c echo.Context) error {
	if err := s.meta.EnableInvocationCache(c.Request().Context()); err != nil {
		return apperrors.ExternalError("failed to enable invocation cache", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDisableInvocationCache(c echo.Context) error {
	if err := s.meta.DisableInvocationCache(c.Request().Context()); err != nil {
		return apperrors.ExternalError("failed to disable invocation cache", err)
	}
	return c.NoContent(http.StatusNoContent)
}
