package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InFlightGuard lets one notification per payment through at a time.
type InFlightGuard interface {
	// Acquire returns ok=false when another delivery for paymentID is being handled.
	Acquire(ctx context.Context, paymentID string) (release func(), ok bool, err error)
}

// LocalGuard serializes deliveries inside one process.
type LocalGuard struct {
	inFlight sync.Map
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) Acquire(_ context.Context, paymentID string) (func(), bool, error) {
	if _, loaded := g.inFlight.LoadOrStore(paymentID, true); loaded {
		return nil, false, nil
	}
	return func() { g.inFlight.Delete(paymentID) }, true, nil
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisGuard serializes deliveries across replicas sharing one Redis.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedisGuard(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl, prefix: "iptv:payment-lock:", logger: logger}
}

func (g *RedisGuard) Acquire(ctx context.Context, paymentID string) (func(), bool, error) {
	key := g.prefix + paymentID
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() { g.release(key, token) }, true, nil
}

// release drops the lock. A failed release leaves the key until its TTL runs
// out, and deliveries for the payment are turned away as in flight until then.
func (g *RedisGuard) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deleted, err := releaseScript.Run(ctx, g.client, []string{key}, token).Int()
	switch {
	case err != nil:
		g.logger.Error("Failed to release payment lock", "key", key, "ttl", g.ttl, "error", err)
	case deleted == 0:
		g.logger.Warn("Payment lock expired before release", "key", key, "ttl", g.ttl)
	}
}
