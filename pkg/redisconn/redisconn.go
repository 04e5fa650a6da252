// Package redisconn opens the Redis client shared by the report cache and the
// sync lock.
package redisconn

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/tablestack/tablestack-backend/pkg/config"
	"github.com/tablestack/tablestack-backend/pkg/logger"
)

// Conn holds a connected client and a lock client on top of it.
type Conn struct {
	Client *redis.Client
	Locks  *redislock.Client
}

// New connects and pings Redis. It returns nil, nil when Redis is not
// configured.
func New(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*Conn, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis")
	return &Conn{Client: client, Locks: redislock.New(client)}, nil
}

// Health reports the connection state in the shape used by /health.
func (c *Conn) Health(ctx context.Context) map[string]string {
	if c == nil {
		return map[string]string{"status": "disabled"}
	}
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}
	return map[string]string{"status": "up"}
}

// Close closes the client.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	return c.Client.Close()
}
