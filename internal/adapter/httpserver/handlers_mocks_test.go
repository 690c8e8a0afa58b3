package httpserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/H0onnn/InvokeAI/internal/adapter/metaapi"
	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/platform/config"
	"github.com/H0onnn/InvokeAI/internal/state"
)

// --- Mock implementations ---

type mockPresetRepo struct {
	saveFn   func(ctx context.Context, preset domain.LayerPreset) error
	getFn    func(ctx context.Context, id uuid.UUID) (*domain.LayerPreset, error)
	listFn   func(ctx context.Context) ([]domain.LayerPreset, error)
	deleteFn func(ctx context.Context, id uuid.UUID) error
}

func (m *mockPresetRepo) Save(ctx context.Context, preset domain.LayerPreset) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, preset)
	}
	return nil
}

func (m *mockPresetRepo) Get(ctx context.Context, id uuid.UUID) (*domain.LayerPreset, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.ErrPresetNotFound
}

func (m *mockPresetRepo) List(ctx context.Context) ([]domain.LayerPreset, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockPresetRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockMetaService struct {
	getVersionFn     func(ctx context.Context) (metaapi.Version, error)
	getAppDepsFn     func(ctx context.Context) (map[string]string, error)
	getAppConfigFn   func(ctx context.Context) (metaapi.AppConfig, error)
	getCacheStatusFn func(ctx context.Context) (metaapi.InvocationCacheStatus, error)
	clearCacheFn     func(ctx context.Context) error
	enableCacheFn    func(ctx context.Context) error
	disableCacheFn   func(ctx context.Context) error
}

func (m *mockMetaService) GetVersion(ctx context.Context) (metaapi.Version, error) {
	if m.getVersionFn != nil {
		return m.getVersionFn(ctx)
	}
	return metaapi.Version{}, errors.New("not implemented")
}

func (m *mockMetaService) GetAppDeps(ctx context.Context) (map[string]string, error) {
	if m.getAppDepsFn != nil {
		return m.getAppDepsFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockMetaService) GetAppConfig(ctx context.Context) (metaapi.AppConfig, error) {
	if m.getAppConfigFn != nil {
		return m.getAppConfigFn(ctx)
	}
	return metaapi.AppConfig{}, errors.New("not implemented")
}

func (m *mockMetaService) GetInvocationCacheStatus(ctx context.Context) (metaapi.InvocationCacheStatus, error) {
	if m.getCacheStatusFn != nil {
		return m.getCacheStatusFn(ctx)
	}
	return metaapi.InvocationCacheStatus{}, errors.New("not implemented")
}

func (m *mockMetaService) ClearInvocationCache(ctx context.Context) error {
	if m.clearCacheFn != nil {
		return m.clearCacheFn(ctx)
	}
	return nil
}

func (m *mockMetaService) EnableInvocationCache(ctx context.Context) error {
	if m.enableCacheFn != nil {
		return m.enableCacheFn(ctx)
	}
	return nil
}

func (m *mockMetaService) DisableInvocationCache(ctx context.Context) error {
	if m.disableCacheFn != nil {
		return m.disableCacheFn(ctx)
	}
	return nil
}

// --- Test helpers ---

func newTestServer(t *testing.T, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:      echo.New(),
		config:    &config.Config{Port: "9090", QueueID: "default"},
		store:     state.NewStore(),
		presets:   &mockPresetRepo{},
		meta:      &mockMetaService{},
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withPresetRepo(repo domain.PresetRepository) func(*Server) {
	return func(s *Server) {
		s.presets = repo
	}
}

func withMetaService(meta metaService) func(*Server) {
	return func(s *Server) {
		s.meta = meta
	}
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

// addTestLayer seeds a layer directly through the store.
func addTestLayer(srv *Server, layer domain.ControlLayer) {
	srv.store.Dispatch(domain.LayerAdded{Layer: layer})
}
