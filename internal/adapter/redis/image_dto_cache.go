package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/metrics"
)

// ImageDTOCache is a read-through cache in front of an image client.
// Descriptors are immutable once an image exists, so a long TTL is safe.
// Cache failures degrade to a direct fetch; a broken Redis never blocks
// reconciliation.
type ImageDTOCache struct {
	rdb    goredis.Cmdable
	source domain.ImageClient
	ttl    time.Duration

	// Concurrent reconciles of the same image share one backend fetch.
	group singleflight.Group
}

var _ domain.ImageClient = (*ImageDTOCache)(nil)

func NewImageDTOCache(rdb goredis.Cmdable, source domain.ImageClient, ttl time.Duration) *ImageDTOCache {
	return &ImageDTOCache{rdb: rdb, source: source, ttl: ttl}
}

func (c *ImageDTOCache) GetImageDTO(ctx context.Context, imageName string) (*domain.ImageDTO, error) {
	key := cacheKey(imageName)

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var dto domain.ImageDTO
		if jsonErr := json.Unmarshal([]byte(raw), &dto); jsonErr == nil {
			metrics.ImageDTOCacheHits.Inc()
			return &dto, nil
		}
		// Corrupt entry, fall through to refetch and overwrite.
		slog.Warn("Corrupt cached image descriptor, refetching", "image_name", imageName)
	case errors.Is(err, goredis.Nil):
		metrics.ImageDTOCacheMisses.Inc()
	default:
		metrics.ImageDTOCacheMisses.Inc()
		slog.Warn("Image descriptor cache read failed", "image_name", imageName, "error", err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		dto, err := c.source.GetImageDTO(ctx, imageName)
		if err != nil {
			return nil, err
		}
		c.writeCache(ctx, key, dto)
		return dto, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ImageDTO), nil
}

func (c *ImageDTOCache) writeCache(ctx context.Context, key string, dto *domain.ImageDTO) {
	data, err := json.Marshal(dto)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("Image descriptor cache write failed", "key", key, "error", err)
	}
}

func cacheKey(imageName string) string {
	return "image_dto:" + imageName
}
