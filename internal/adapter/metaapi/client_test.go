package metaapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackend struct {
	srv   *httptest.Server
	calls map[string]*atomic.Int32
}

func newCountingBackend(t *testing.T) *countingBackend {
	t.Helper()
	b := &countingBackend{calls: map[string]*atomic.Int32{}}
	for _, p := range []string{
		"/api/v1/app/version",
		"/api/v1/app/app_deps",
		"/api/v1/app/config",
		"/api/v1/app/invocation_cache/status",
		"/api/v1/app/invocation_cache",
		"/api/v1/app/invocation_cache/enable",
		"/api/v1/app/invocation_cache/disable",
	} {
		b.calls[p] = &atomic.Int32{}
	}

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter, ok := b.calls[r.URL.Path]
		require.True(t, ok, "unexpected path %s", r.URL.Path)
		counter.Add(1)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/app/version":
			_, _ = w.Write([]byte(`{"version":"4.2.9"}`))
		case "/api/v1/app/app_deps":
			_, _ = w.Write([]byte(`{"torch":"2.1.0","numpy":"1.26.2"}`))
		case "/api/v1/app/config":
			_, _ = w.Write([]byte(`{"infill_methods":["tile","lama"],"upscaling_methods":["esrgan"],"nsfw_methods":[],"watermarking_methods":[]}`))
		case "/api/v1/app/invocation_cache/status":
			_, _ = w.Write([]byte(`{"size":10,"hits":42,"misses":7,"enabled":true,"max_size":512}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *countingBackend) count(path string) int32 {
	return b.calls[path].Load()
}

func TestClient_TypedReads(t *testing.T) {
	backend := newCountingBackend(t)
	client := New(backend.srv.URL, clockwork.NewFakeClock())
	ctx := context.Background()

	version, err := client.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4.2.9", version.Version)

	deps, err := client.GetAppDeps(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", deps["torch"])

	cfg, err := client.GetAppConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tile", "lama"}, cfg.InfillMethods)
	assert.Equal(t, []string{"esrgan"}, cfg.UpscalingMethods)

	status, err := client.GetInvocationCacheStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, status.Hits)
	assert.True(t, status.Enabled)
	assert.Equal(t, 512, status.MaxSize)
}

func TestClient_ReadsAreCached(t *testing.T) {
	backend := newCountingBackend(t)
	client := New(backend.srv.URL, clockwork.NewFakeClock())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.GetVersion(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), backend.count("/api/v1/app/version"))
}

func TestClient_CacheExpiresAfterTTL(t *testing.T) {
	backend := newCountingBackend(t)
	clock := clockwork.NewFakeClock()
	client := New(backend.srv.URL, clock)
	ctx := context.Background()

	_, err := client.GetVersion(ctx)
	require.NoError(t, err)

	clock.Advance(tagCacheTTL + time.Second)

	_, err = client.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), backend.count("/api/v1/app/version"))
}

func TestClient_MutationInvalidatesCacheStatus(t *testing.T) {
	backend := newCountingBackend(t)
	client := New(backend.srv.URL, clockwork.NewFakeClock())
	ctx := context.Background()

	_, err := client.GetInvocationCacheStatus(ctx)
	require.NoError(t, err)
	_, err = client.GetVersion(ctx)
	require.NoError(t, err)

	require.NoError(t, client.ClearInvocationCache(ctx))
	assert.Equal(t, int32(1), backend.count("/api/v1/app/invocation_cache"))

	// Cache-status tag was invalidated; version was not.
	_, err = client.GetInvocationCacheStatus(ctx)
	require.NoError(t, err)
	_, err = client.GetVersion(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), backend.count("/api/v1/app/invocation_cache/status"))
	assert.Equal(t, int32(1), backend.count("/api/v1/app/version"))
}

func TestClient_EnableDisableInvocationCache(t *testing.T) {
	backend := newCountingBackend(t)
	client := New(backend.srv.URL, clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, client.EnableInvocationCache(ctx))
	require.NoError(t, client.DisableInvocationCache(ctx))

	assert.Equal(t, int32(1), backend.count("/api/v1/app/invocation_cache/enable"))
	assert.Equal(t, int32(1), backend.count("/api/v1/app/invocation_cache/disable"))
}

func TestClient_RefreshTagsDropsEverything(t *testing.T) {
	backend := newCountingBackend(t)
	client := New(backend.srv.URL, clockwork.NewFakeClock())
	ctx := context.Background()

	_, err := client.GetVersion(ctx)
	require.NoError(t, err)
	_, err = client.GetAppConfig(ctx)
	require.NoError(t, err)

	client.RefreshTags()

	_, err = client.GetVersion(ctx)
	require.NoError(t, err)
	_, err = client.GetAppConfig(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), backend.count("/api/v1/app/version"))
	assert.Equal(t, int32(2), backend.count("/api/v1/app/config"))
}

func TestClient_BackendErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, clockwork.NewFakeClock())

	_, err := client.GetVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
