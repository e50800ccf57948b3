package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SettingsChannel carries invalidation notices published whenever a
// runtime setting changes, so every node reloads its cached copy.
const SettingsChannel = "settings:invalidate"

// Client wraps the Redis connection.
type Client struct {
	rdb *goredis.Client
}

// NewClient connects to Redis with retry.
func NewClient(addr string) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err == nil {
			cancel()
			log.Println("Connected to Redis")
			return &Client{rdb: rdb}, nil
		}
		cancel()
		log.Printf("Waiting for Redis... (%d/20)", i+1)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("redis: failed to connect after 20 attempts")
}

// PublishSettingsChanged notifies all subscribers that a setting key changed.
func (c *Client) PublishSettingsChanged(ctx context.Context, key string) error {
	return c.rdb.Publish(ctx, SettingsChannel, key).Err()
}

// WatchSettings subscribes to settings invalidations and invokes handler
// with the changed key until ctx is cancelled.
func (c *Client) WatchSettings(ctx context.Context, handler func(key string)) {
	sub := c.rdb.Subscribe(ctx, SettingsChannel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			}
		}
	}()
}

// CacheRide stores a ride snapshot in a hash with TTL.
func (c *Client) CacheRide(ctx context.Context, rideID string, data map[string]string) error {
	key := "ride:" + rideID
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// GetCachedRide retrieves a cached ride hash.
func (c *Client) GetCachedRide(ctx context.Context, rideID string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, "ride:"+rideID).Result()
}

// DropCachedRide removes a ride snapshot once the ride reaches a terminal state.
func (c *Client) DropCachedRide(ctx context.Context, rideID string) error {
	return c.rdb.Del(ctx, "ride:"+rideID).Err()
}

// Close tears down the Redis connection.
func (c *Client) Close() error { return c.rdb.Close() }
