package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lorekeep/lorekeep/pkg/archive"
)

// RedisConfig configures the Redis archive backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all archive keys (e.g., "lorekeep:archives:")
	Prefix string

	// TTL is the time-to-live for archive keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int

	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "lorekeep:archives:",
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisBackend stores archives in Redis for low-latency access. A set key
// tracks the ids so List never scans.
type RedisBackend struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisBackend creates a Redis archive backend.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{cfg: cfg, client: client}, nil
}

func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + id
}

func (b *RedisBackend) idSetKey() string {
	return b.cfg.Prefix + "ids"
}

// Create makes a new archive key.
func (b *RedisBackend) Create(ctx context.Context, sessionID string, sessionStart int64, p *archive.Pass) (*archive.Archive, error) {
	a := newArchive(sessionID, sessionStart, p)
	if err := b.save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Append merges a pass into an existing archive key.
func (b *RedisBackend) Append(ctx context.Context, id string, p *archive.Pass) (*archive.Archive, error) {
	a, err := b.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	appendPass(a, p)
	if err := b.save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Read loads an archive from Redis.
func (b *RedisBackend) Read(ctx context.Context, id string) (*archive.Archive, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load archive from Redis: %w", err)
	}
	var a archive.Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive: %w", err)
	}
	return &a, nil
}

// Delete removes an archive from Redis.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	pipe := b.client.Pipeline()
	pipe.Del(ctx, b.key(id))
	pipe.SRem(ctx, b.idSetKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns all archive ids.
func (b *RedisBackend) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	ids, err := b.client.SMembers(ctx, b.idSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	return ids, nil
}

// Name returns "redis".
func (b *RedisBackend) Name() string { return "redis" }

// Close releases the client.
func (b *RedisBackend) Close() error { return b.client.Close() }

func (b *RedisBackend) save(ctx context.Context, a *archive.Archive) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.key(a.ID), data, b.cfg.TTL)
	pipe.SAdd(ctx, b.idSetKey(), a.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save archive to Redis: %w", err)
	}
	return nil
}
