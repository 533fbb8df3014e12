package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"tawarln-chat/internal/model"
)

// SharedSessionCache keeps the public projection of shared sessions.
type SharedSessionCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewSharedSessionCache(client *redisv9.Client, ttl time.Duration) *SharedSessionCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &SharedSessionCache{client: client, ttl: ttl}
}

func (c *SharedSessionCache) Get(ctx context.Context, id string) (*model.SharedSession, bool, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get shared session failed: %w", err)
	}

	var shared model.SharedSession
	if err := json.Unmarshal(raw, &shared); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached shared session failed: %w", err)
	}
	return &shared, true, nil
}

func (c *SharedSessionCache) Set(ctx context.Context, shared model.SharedSession) error {
	payload, err := json.Marshal(shared)
	if err != nil {
		return fmt.Errorf("marshal shared session failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(shared.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set shared session failed: %w", err)
	}
	return nil
}

func (c *SharedSessionCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete shared session failed: %w", err)
	}
	return nil
}

func (c *SharedSessionCache) key(id string) string {
	return "chat:shared:" + id
}
