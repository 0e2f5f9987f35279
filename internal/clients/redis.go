package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"

	"hackcbs/vectorgate/internal/config"
	"hackcbs/vectorgate/internal/orchestrator"
)

const redisProbeName = "redis"

// errLockHeld is returned by a single acquisition attempt when another
// instance holds the bootstrap lock.
var errLockHeld = errors.New("bootstrap lock held by another instance")

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// lockStore is the interface used by RedisLocker. It is implemented by the
// real go-redis client wrapper and by test doubles.
type lockStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) error
	PingResult(ctx context.Context) (string, error)
	Close() error
}

// realLockStore adapts a *redis.Client to lockStore so tests can inject a
// fake without constructing go-redis command types.
type realLockStore struct {
	client *redis.Client
}

func (r *realLockStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *realLockStore) CompareAndDelete(ctx context.Context, key, value string) error {
	return releaseScript.Run(ctx, r.client, []string{key}, value).Err()
}

func (r *realLockStore) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realLockStore) Close() error {
	return r.client.Close()
}

// RedisLocker serialises bootstrap runs across replicas with a Redis
// SET NX lock, so only one instance lists and creates the index at a time.
type RedisLocker struct {
	key          string
	ttl          time.Duration
	pollInterval time.Duration
	cb           *gobreaker.CircuitBreaker
	store        lockStore
}

// NewRedisLocker creates a RedisLocker. The go-redis client connects lazily
// on its first command.
func NewRedisLocker(cfg config.BootstrapConfig, cb *gobreaker.CircuitBreaker) *RedisLocker {
	return &RedisLocker{
		key:          cfg.LockKey,
		ttl:          cfg.LockTTL,
		pollInterval: cfg.RetryBackoff,
		cb:           cb,
		store: &realLockStore{
			client: redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}),
		},
	}
}

// Acquire blocks until the lock is taken or ctx is done. A taken lock is
// polled every pollInterval; Redis errors and an open circuit fail at once.
// The returned release func deletes the lock only if this instance still
// owns it.
func (l *RedisLocker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()

	interval := l.pollInterval
	if interval <= 0 {
		interval = time.Second
	}

	attempt := 0
	err := retry.Do(ctx, retry.NewConstant(interval), func(ctx context.Context) error {
		attempt++
		acquired, err := l.cb.Execute(func() (any, error) {
			ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
			if err != nil {
				return nil, fmt.Errorf("setnx %s: %w", l.key, err)
			}
			return ok, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				return fmt.Errorf("circuit open: %w", err)
			}
			return err
		}
		if !acquired.(bool) {
			if attempt == 1 {
				slog.InfoContext(ctx, "waiting for bootstrap lock", "key", l.key)
			}
			return retry.RetryableError(errLockHeld)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", l.key, err)
	}

	slog.InfoContext(ctx, "bootstrap lock acquired", "key", l.key)

	release := func(ctx context.Context) error {
		if err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
			return fmt.Errorf("releasing lock %s: %w", l.key, err)
		}
		return nil
	}
	return release, nil
}

// Probe sends a PING command to Redis and validates the PONG response.
func (l *RedisLocker) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := l.cb.Execute(func() (any, error) {
		val, err := l.store.PingResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return orchestrator.ProbeResult{
			Name:      redisProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return orchestrator.ProbeResult{
		Name:      redisProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// Close closes the underlying Redis connection pool.
func (l *RedisLocker) Close() error {
	return l.store.Close()
}
