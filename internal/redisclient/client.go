package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/drain_list.lua
var drainListScript string

type Client struct {
	rdb         *redis.Client
	drainScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:         rdb,
		drainScript: redis.NewScript(drainListScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func versionKey(companyID int64) string {
	return fmt.Sprintf("inventory:%d:version", companyID)
}

// inventoryKey scopes a cache entry to the company's current inventory version, so bumping
// the version invalidates every entry at once without scanning keys
func (c *Client) inventoryKey(ctx context.Context, companyID int64, name string) (string, error) {
	version, err := c.rdb.Get(ctx, versionKey(companyID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("inventory:%d:v%d:%s", companyID, version, name), nil
}

// GetInventoryJSON decodes a cached inventory entry into dest; false on a miss
func (c *Client) GetInventoryJSON(ctx context.Context, companyID int64, name string, dest interface{}) (bool, error) {
	key, err := c.inventoryKey(ctx, companyID, name)
	if err != nil {
		return false, err
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", name, err)
	}
	return true, nil
}

// SetInventoryJSON caches an inventory entry under the company's current version
func (c *Client) SetInventoryJSON(ctx context.Context, companyID int64, name string, value interface{}, ttl time.Duration) error {
	key, err := c.inventoryKey(ctx, companyID, name)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// InvalidateInventory drops every cached inventory entry of a company
func (c *Client) InvalidateInventory(ctx context.Context, companyID int64) error {
	return c.rdb.Incr(ctx, versionKey(companyID)).Err()
}

// ClaimIdempotencyKey claims a key with TTL; false if another request holds it
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Result()
}

// ReleaseIdempotencyKey lets the key be claimed again
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}

func flashKey(userID int64) string {
	return fmt.Sprintf("flash:%d", userID)
}

// PushFlash appends a message to a user's flash list
func (c *Client) PushFlash(ctx context.Context, userID int64, payload []byte, ttl time.Duration) error {
	key := flashKey(userID)

	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// DrainFlash atomically returns and clears a user's flash list
func (c *Client) DrainFlash(ctx context.Context, userID int64) ([][]byte, error) {
	result, err := c.drainScript.Run(ctx, c.rdb, []string{flashKey(userID)}).Result()
	if err != nil {
		return nil, fmt.Errorf("drain flash script failed: %w", err)
	}

	items, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script result type")
	}

	out := make([][]byte, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, []byte(s))
		}
	}
	return out, nil
}
