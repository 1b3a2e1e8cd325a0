package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	apperrors "github.com/vendure-ecommerce/vendure-sub026/internal/errors"
)

const keyPrefix = "search:response:"

// SearchCache implements repository.SearchCache using Redis. Responses are
// stored as JSON under a query-hash key with a TTL; reindex runs flush the
// whole prefix instead of tracking which queries each write affects.
type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSearchCache creates a new Redis-backed search response cache.
func NewSearchCache(client *redis.Client, ttl time.Duration) *SearchCache {
	return &SearchCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cached response by query key.
func (c *SearchCache) Get(ctx context.Context, key string) (*domain.SearchResponse, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("cached search response", key)
		}
		return nil, fmt.Errorf("redis get search response: %w", err)
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal cached search response: %w", err)
	}

	return &resp, nil
}

// Set stores a response under the query key with the configured TTL.
func (c *SearchCache) Set(ctx context.Context, key string, resp *domain.SearchResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal search response: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set search response: %w", err)
	}

	return nil
}

// Flush removes every cached response. Called after index writes; a stale
// page is acceptable within the TTL but not across an explicit rebuild.
func (c *SearchCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan search responses: %w", err)
	}
	return nil
}
