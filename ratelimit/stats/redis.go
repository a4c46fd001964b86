package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis aggregates decisions in per-minute hashes plus a running total.
//
//	<prefix>:total           allowed, denied
//	<prefix>:m:200601021504  allowed, denied (expires after ttl)
//
// Keys are deliberately not tracked: one hash field per client would grow
// without bound under many distinct addresses.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// RedisOption configures a Redis recorder.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix (default "farmgate:stats").
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithTTL sets how long minute buckets are kept (default 24h).
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewRedis returns a recorder on an existing client. The caller owns the client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "farmgate:stats",
		ttl:    24 * time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Record(ctx context.Context, ev Event) error {
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	bucket := r.bucketKey(at)

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, r.prefix+":total", field, 1)
		p.HIncrBy(ctx, bucket, field, 1)
		p.Expire(ctx, bucket, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis stats record failed: %w", err)
	}
	return nil
}

func (r *Redis) bucketKey(at time.Time) string {
	return r.prefix + ":m:" + at.UTC().Format("200601021504")
}

// Snapshot reads the running total and the recent minute buckets in one
// round trip.
func (r *Redis) Snapshot(ctx context.Context) (Totals, error) {
	starts := recentStarts(r.now())

	pipe := r.client.Pipeline()
	total := pipe.HGetAll(ctx, r.prefix+":total")
	buckets := make([]*redis.MapStringStringCmd, len(starts))
	for i, s := range starts {
		buckets[i] = pipe.HGetAll(ctx, r.bucketKey(s))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Totals{}, fmt.Errorf("redis stats snapshot failed: %w", err)
	}

	allowed, denied := counts(total.Val())
	t := Totals{Allowed: allowed, Denied: denied}
	for i, cmd := range buckets {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		allowed, denied := counts(vals)
		t.Recent = append(t.Recent, Minute{Start: starts[i], Allowed: allowed, Denied: denied})
	}
	return t, nil
}

func counts(vals map[string]string) (allowed, denied int64) {
	if v, ok := vals["allowed"]; ok {
		allowed, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := vals["denied"]; ok {
		denied, _ = strconv.ParseInt(v, 10, 64)
	}
	return allowed, denied
}
