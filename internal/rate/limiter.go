// Package rate limita intentos por key con ventana fija. Se usa para frenar
// fuerza bruta sobre signin/signup.
package rate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Config del limiter. Driver sigue a cache.kind: memory | redis.
type Config struct {
	Driver   string
	Addr     string
	Password string
	DB       int
	Prefix   string
	Max      int
	Window   time.Duration
}

// New crea el limiter según cfg.Driver.
func New(ctx context.Context, cfg Config) (Limiter, error) {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("rate: max and window must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "redis":
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("rate: redis ping: %w", err)
		}
		return NewRedisLimiter(client, cfg.Prefix, cfg.Max, cfg.Window), nil
	case "memory", "":
		return NewMemoryLimiter(cfg.Max, cfg.Window), nil
	default:
		return nil, fmt.Errorf("rate: unknown driver %q", cfg.Driver)
	}
}

func result(hits, max int64, ttl, window time.Duration) Result {
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Duration(math.Ceil(window.Seconds())) * time.Second
		}
	}
	return res
}

// RedisLimiter: fixed window (INCR + EXPIRE), compartido entre procesos.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	} else if !strings.HasSuffix(prefix, ":") {
		prefix += ":rl:"
	}
	return &RedisLimiter{Client: client, Prefix: prefix, Max: int64(max), Window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	// expiry en el primer hit
	if incr.Val() == 1 {
		_ = l.Client.Expire(ctx, redisKey, l.Window).Err()
		ttl = l.Client.TTL(ctx, redisKey)
	}
	return result(incr.Val(), l.Max, ttl.Val(), l.Window), nil
}

// Close cierra el cliente redis propio.
func (l *RedisLimiter) Close() error { return l.Client.Close() }
