// Package metaapi binds the backend's app metadata and invocation-cache
// endpoints. All operations are stateless request/response pairs; reads are
// cached under tags that the corresponding mutations invalidate.
package metaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/H0onnn/InvokeAI/internal/metrics"
)

const (
	httpCallTimeout = 10 * time.Second
	tagCacheTTL     = 5 * time.Minute
)

// Cache tags. Every read caches under exactly one tag; mutations name the
// tags they invalidate.
const (
	tagAppVersion  = "app_version"
	tagAppDeps     = "app_deps"
	tagAppConfig   = "app_config"
	tagCacheStatus = "invocation_cache_status"
)

// Version is the backend application version.
type Version struct {
	Version string `json:"version"`
}

// AppConfig is the backend's feature configuration.
type AppConfig struct {
	InfillMethods       []string `json:"infill_methods"`
	UpscalingMethods    []string `json:"upscaling_methods"`
	NSFWMethods         []string `json:"nsfw_methods"`
	WatermarkingMethods []string `json:"watermarking_methods"`
}

// InvocationCacheStatus reports the backend's invocation cache counters.
type InvocationCacheStatus struct {
	Size    int  `json:"size"`
	Hits    int  `json:"hits"`
	Misses  int  `json:"misses"`
	Enabled bool `json:"enabled"`
	MaxSize int  `json:"max_size"`
}

type Client struct {
	baseURL string
	http    *http.Client
	cache   *tagCache
}

func New(baseURL string, clock clockwork.Clock) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: httpCallTimeout},
		cache:   newTagCache(tagCacheTTL, clock),
	}
}

// RefreshTags drops all cached reads. Wired as a push-channel reconnect
// hook: the backend may have changed arbitrarily while we were disconnected.
func (c *Client) RefreshTags() {
	c.cache.invalidateAll()
}

// GetVersion returns the backend application version.
func (c *Client) GetVersion(ctx context.Context) (Version, error) {
	return getCached[Version](ctx, c, "get_version", tagAppVersion, "api/v1/app/version")
}

// GetAppDeps returns the backend's dependency versions.
func (c *Client) GetAppDeps(ctx context.Context) (map[string]string, error) {
	return getCached[map[string]string](ctx, c, "get_app_deps", tagAppDeps, "api/v1/app/app_deps")
}

// GetAppConfig returns the backend's feature configuration.
func (c *Client) GetAppConfig(ctx context.Context) (AppConfig, error) {
	return getCached[AppConfig](ctx, c, "get_app_config", tagAppConfig, "api/v1/app/config")
}

// GetInvocationCacheStatus returns the backend invocation cache counters.
func (c *Client) GetInvocationCacheStatus(ctx context.Context) (InvocationCacheStatus, error) {
	return getCached[InvocationCacheStatus](ctx, c, "get_cache_status", tagCacheStatus, "api/v1/app/invocation_cache/status")
}

// ClearInvocationCache empties the backend invocation cache.
func (c *Client) ClearInvocationCache(ctx context.Context) error {
	return c.mutate(ctx, "clear_cache", http.MethodDelete, "api/v1/app/invocation_cache")
}

// EnableInvocationCache turns the backend invocation cache on.
func (c *Client) EnableInvocationCache(ctx context.Context) error {
	return c.mutate(ctx, "enable_cache", http.MethodPut, "api/v1/app/invocation_cache/enable")
}

// DisableInvocationCache turns the backend invocation cache off.
func (c *Client) DisableInvocationCache(ctx context.Context) error {
	return c.mutate(ctx, "disable_cache", http.MethodPut, "api/v1/app/invocation_cache/disable")
}

func getCached[T any](ctx context.Context, c *Client, op, tag, path string) (T, error) {
	if v, ok := c.cache.get(tag); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	var out T
	body, err := c.get(ctx, op, path)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%s: decode response: %w", op, err)
	}

	c.cache.set(tag, out)
	return out, nil
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.MetaRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.MetaRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s: read response body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.MetaRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s: backend returned status %d", op, resp.StatusCode)
	}

	metrics.MetaRequestsTotal.WithLabelValues(op, "ok").Inc()
	return body, nil
}

func (c *Client) mutate(ctx context.Context, op, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.MetaRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		metrics.MetaRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: backend returned status %d", op, resp.StatusCode)
	}

	metrics.MetaRequestsTotal.WithLabelValues(op, "ok").Inc()
	c.cache.invalidate(tagCacheStatus)
	return nil
}
