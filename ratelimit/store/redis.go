package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript applies the fixed-window step atomically on a hash holding
// count and start (milliseconds, Redis server clock). Using the server clock
// keeps every gateway instance on the same window boundaries.
// Returns {count, ttl_ms, start_ms}.
var incrScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local window = tonumber(ARGV[1])
local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
if start == nil or now - start > window then
    redis.call('HSET', KEYS[1], 'count', 1, 'start', now)
    redis.call('PEXPIRE', KEYS[1], window + 1)
    return {1, window, now}
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, start + window - now, start}
`)

// Redis is a ledger shared by every gateway instance pointing at the same server.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds configuration for the Redis connection.
// Fields are filled by the caller from the application config; the store never
// reads the environment itself.
type RedisConfig struct {
	// URL is the Redis server address ("localhost:6379") or a redis:// URL.
	URL string

	// Password for Redis authentication (optional)
	Password string

	// DB is the Redis database number
	DB int

	// Prefix is prepended to all keys (default: "farmgate:ratelimit:")
	Prefix string

	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// NewClient opens a go-redis client for config and pings it.
// The stats recorder reuses it so both share one pool.
func NewClient(config RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     config.URL,
		Password: config.Password,
		DB:       config.DB,
	}
	if strings.HasPrefix(config.URL, "redis://") || strings.HasPrefix(config.URL, "rediss://") {
		parsed, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
		if config.Password != "" {
			opts.Password = config.Password
		}
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedis creates a Redis ledger from config.
func NewRedis(config RedisConfig) (*Redis, error) {
	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	return NewRedisFromClient(client, config.Prefix), nil
}

// NewRedisFromClient wraps an existing client. Close closes the client.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "farmgate:ratelimit:"
	}
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

// Increment runs incrScript for key.
func (r *Redis) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	result, err := incrScript.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("redis increment failed: %w", err)
	}
	if len(result) != 3 {
		return 0, 0, fmt.Errorf("unexpected result length: got %d, want 3", len(result))
	}

	ttl := max(0, time.Duration(result[1])*time.Millisecond)
	return result[0], ttl, nil
}

// Get reads the window hash for key. An expired key is already gone.
func (r *Redis) Get(ctx context.Context, key string) (Window, error) {
	vals, err := r.client.HMGet(ctx, r.prefix+key, "count", "start").Result()
	if err != nil {
		return Window{}, fmt.Errorf("redis get failed: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Window{}, nil
	}

	count, err := parseInt(vals[0])
	if err != nil {
		return Window{}, fmt.Errorf("redis get failed: count: %w", err)
	}
	startMs, err := parseInt(vals[1])
	if err != nil {
		return Window{}, fmt.Errorf("redis get failed: start: %w", err)
	}
	return Window{Count: count, Start: time.UnixMilli(startMs)}, nil
}

// Reset removes the window for key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis reset failed: %w", err)
	}
	return nil
}

// Close releases the Redis client connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func parseInt(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}
