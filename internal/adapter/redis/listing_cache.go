package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"github.com/redis/go-redis/v9"
)

const publicViewKeyPrefix = "listing_public:"

// PublicViewCache caches the anonymized projection only. Because gated
// fields never enter the cache, entries are safe to serve to any actor.
type PublicViewCache interface {
	Get(ctx context.Context, listingID string) (*entity.PublicListing, error)
	Set(ctx context.Context, view *entity.PublicListing, ttl time.Duration) error
	Delete(ctx context.Context, listingID string) error
}

type publicViewCache struct {
	client *redis.Client
}

func NewPublicViewCache(client *redis.Client) PublicViewCache {
	return &publicViewCache{client: client}
}

func (c *publicViewCache) key(listingID string) string {
	return publicViewKeyPrefix + listingID
}

func (c *publicViewCache) Get(ctx context.Context, listingID string) (*entity.PublicListing, error) {
	val, err := c.client.Get(ctx, c.key(listingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cached public view for listing %s: %w", listingID, err)
	}

	var view entity.PublicListing
	if err := json.Unmarshal(val, &view); err != nil {
		_ = c.Delete(ctx, listingID)
		return nil, fmt.Errorf("failed to unmarshal cached public view for listing %s: %w", listingID, err)
	}
	return &view, nil
}

func (c *publicViewCache) Set(ctx context.Context, view *entity.PublicListing, ttl time.Duration) error {
	if view == nil || view.ID == "" {
		return errors.New("cannot cache nil public view or view with empty listing ID")
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal public view for listing %s: %w", view.ID, err)
	}
	if err := c.client.Set(ctx, c.key(view.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache public view for listing %s: %w", view.ID, err)
	}
	return nil
}

func (c *publicViewCache) Delete(ctx context.Context, listingID string) error {
	if err := c.client.Del(ctx, c.key(listingID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached public view for listing %s: %w", listingID, err)
	}
	return nil
}
