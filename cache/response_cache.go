package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mastodon/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const responseCacheKeyPrefix = "go-mastodon::response::v1"

var errCacheMiss = errors.New("cache: miss")

// ResponseCache stores successful GET responses. Entries expire with the
// TTL configured on the underlying cache service.
type ResponseCache struct {
	service repositorycache.CacheService
}

func NewResponseCache(service repositorycache.CacheService) (*ResponseCache, error) {
	if service == nil {
		return nil, fmt.Errorf("cache: cache service is required")
	}
	return &ResponseCache{service: service}, nil
}

// NewResponseCacheFromConfig builds an in-process cache service sized by cfg.
func NewResponseCacheFromConfig(cfg core.CacheConfig) (*ResponseCache, error) {
	config := repositorycache.DefaultConfig()
	if cfg.TTL > 0 {
		config.TTL = cfg.TTL
	} else {
		config.TTL = 5 * time.Minute
	}
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("cache: new cache service: %w", err)
	}
	return NewResponseCache(service)
}

// Key namespaces a runtime cache key.
func Key(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("cache: key is required")
	}
	return responseCacheKeyPrefix + "::" + trimmed, nil
}

func (c *ResponseCache) Get(ctx context.Context, key string) (core.TransportResponse, bool, error) {
	if c == nil || c.service == nil {
		return core.TransportResponse{}, false, fmt.Errorf("cache: response cache is not configured")
	}
	cacheKey, err := Key(key)
	if err != nil {
		return core.TransportResponse{}, false, err
	}
	res, err := repositorycache.GetOrFetch(ctx, c.service, cacheKey, func(context.Context) (core.TransportResponse, error) {
		return core.TransportResponse{}, errCacheMiss
	})
	if errors.Is(err, errCacheMiss) {
		return core.TransportResponse{}, false, nil
	}
	if err != nil {
		return core.TransportResponse{}, false, err
	}
	return cloneResponse(res), true, nil
}

// Set replaces any entry under key with res.
func (c *ResponseCache) Set(ctx context.Context, key string, res core.TransportResponse) error {
	if c == nil || c.service == nil {
		return fmt.Errorf("cache: response cache is not configured")
	}
	cacheKey, err := Key(key)
	if err != nil {
		return err
	}
	if err := c.service.Delete(ctx, cacheKey); err != nil {
		return err
	}
	stored := cloneResponse(res)
	_, err = repositorycache.GetOrFetch(ctx, c.service, cacheKey, func(context.Context) (core.TransportResponse, error) {
		return stored, nil
	})
	return err
}

func (c *ResponseCache) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.service == nil {
		return fmt.Errorf("cache: response cache is not configured")
	}
	cacheKey, err := Key(key)
	if err != nil {
		return err
	}
	return c.service.Delete(ctx, cacheKey)
}

func cloneResponse(res core.TransportResponse) core.TransportResponse {
	out := core.TransportResponse{StatusCode: res.StatusCode}
	if res.Body != nil {
		out.Body = append([]byte(nil), res.Body...)
	}
	if res.Headers != nil {
		out.Headers = make(map[string]string, len(res.Headers))
		for key, value := range res.Headers {
			out.Headers[key] = value
		}
	}
	if res.Metadata != nil {
		out.Metadata = make(map[string]any, len(res.Metadata))
		for key, value := range res.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}

var _ core.ResponseCache = (*ResponseCache)(nil)
