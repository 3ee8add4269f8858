package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zalo-hub/internal/domain/sticker"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - sticker:{sticker_id}:{cate_id}:{type} - sticker metadata, long TTL

// CacheConfig contains configuration for caching
type CacheConfig struct {
	StickerTTL time.Duration // TTL for sticker metadata (default 24h)
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		StickerTTL: 24 * time.Hour,
	}
}

// CacheStore handles caching in Redis
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	if config.StickerTTL <= 0 {
		config.StickerTTL = DefaultCacheConfig().StickerTTL
	}
	return &CacheStore{
		client: client,
		config: config,
	}
}

func stickerKey(stickerID, cateID int64, stickerType int) string {
	return fmt.Sprintf("sticker:%d:%d:%d", stickerID, cateID, stickerType)
}

// GetSticker retrieves sticker metadata; nil on cache miss
func (c *CacheStore) GetSticker(ctx context.Context, stickerID, cateID int64, stickerType int) (*sticker.Sticker, error) {
	data, err := c.client.Get(ctx, stickerKey(stickerID, cateID, stickerType)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s sticker.Sticker
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSticker stores sticker metadata
func (c *CacheStore) SetSticker(ctx context.Context, s sticker.Sticker) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, stickerKey(s.StickerID, s.CateID, s.Type), data, c.config.StickerTTL).Err()
}
