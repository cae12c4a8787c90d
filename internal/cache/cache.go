// Package cache is a thin redis layer for per-address read models that are
// expensive to rebuild: dashboards and username lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Cache struct {
	client *redis.Client
	log    *zap.Logger
}

func New(client *redis.Client, log *zap.Logger) *Cache {
	return &Cache{client: client, log: log}
}

func dashboardKey(addr common.Address) string {
	return "dashboard:" + strings.ToLower(addr.Hex())
}

func usernameKey(addr common.Address) string {
	return "username:" + strings.ToLower(addr.Hex())
}

// GetDashboard loads a cached dashboard into dest. Returns false on miss or
// decode failure; cache trouble never fails a request.
func (c *Cache) GetDashboard(ctx context.Context, addr common.Address, dest any) bool {
	data, err := c.client.Get(ctx, dashboardKey(addr)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("dashboard cache read failed", zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.log.Warn("dashboard cache decode failed", zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) SetDashboard(ctx context.Context, addr common.Address, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("dashboard cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, dashboardKey(addr), data, ttl).Err(); err != nil {
		c.log.Warn("dashboard cache write failed", zap.Error(err))
	}
}

// InvalidateDashboard drops the cached dashboard after a mutating action.
func (c *Cache) InvalidateDashboard(ctx context.Context, addr common.Address) {
	if err := c.client.Del(ctx, dashboardKey(addr)).Err(); err != nil {
		c.log.Warn("dashboard cache invalidate failed", zap.Error(err))
	}
}

// GetUsername returns the cached display name. The empty string is cached
// too, so ok distinguishes a miss from a known-empty name.
func (c *Cache) GetUsername(ctx context.Context, addr common.Address) (string, bool) {
	name, err := c.client.Get(ctx, usernameKey(addr)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("username cache read failed", zap.Error(err))
		}
		return "", false
	}
	return name, true
}

func (c *Cache) SetUsername(ctx context.Context, addr common.Address, name string, ttl time.Duration) {
	if err := c.client.Set(ctx, usernameKey(addr), name, ttl).Err(); err != nil {
		c.log.Warn("username cache write failed", zap.Error(err))
	}
}

func (c *Cache) InvalidateUsername(ctx context.Context, addr common.Address) {
	if err := c.client.Del(ctx, usernameKey(addr)).Err(); err != nil {
		c.log.Warn("username cache invalidate failed", zap.Error(err))
	}
}
