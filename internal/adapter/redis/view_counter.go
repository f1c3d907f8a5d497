package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	viewCountKeyPrefix = "listing_views:"
	popularityZSetKey  = "listing_popularity"
)

// ViewCounter tracks full-view counts per listing for popularity sort.
// Increments are a plain atomic INCR; they deliberately stay outside any
// transaction with the disclosure decision.
type ViewCounter interface {
	Increment(ctx context.Context, listingID string) error
	Get(ctx context.Context, listingID string) (int64, error)
	TopListings(ctx context.Context, n int64) ([]string, error)
}

type viewCounter struct {
	client *redis.Client
}

func NewViewCounter(client *redis.Client) ViewCounter {
	return &viewCounter{client: client}
}

func (c *viewCounter) Increment(ctx context.Context, listingID string) error {
	pipe := c.client.Pipeline()
	pipe.Incr(ctx, viewCountKeyPrefix+listingID)
	pipe.ZIncrBy(ctx, popularityZSetKey, 1, listingID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment view count for listing %s: %w", listingID, err)
	}
	return nil
}

func (c *viewCounter) Get(ctx context.Context, listingID string) (int64, error) {
	count, err := c.client.Get(ctx, viewCountKeyPrefix+listingID).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get view count for listing %s: %w", listingID, err)
	}
	return count, nil
}

func (c *viewCounter) TopListings(ctx context.Context, n int64) ([]string, error) {
	ids, err := c.client.ZRevRange(ctx, popularityZSetKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read listing popularity ranking: %w", err)
	}
	return ids, nil
}
