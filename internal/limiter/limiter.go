// Package limiter implements Redis fixed-window throttles for the login and
// password-reset request paths.
package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrLimited is returned once a key exceeds its window budget.
	ErrLimited = errors.New("rate limited")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("limiter unavailable")
)

// Limiter admits or rejects one attempt for key.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Window configures a fixed-window limiter.
type Window struct {
	Prefix      string
	MaxAttempts int
	Period      time.Duration
	// FailOpen admits attempts when Redis is unreachable.
	FailOpen bool
}

// RedisLimiter counts attempts per key with INCR and a window-long EXPIRE.
type RedisLimiter struct {
	redis  redis.UniversalClient
	window Window
	logger *zap.Logger
}

// NewRedisLimiter builds a limiter. A non-positive MaxAttempts disables it.
func NewRedisLimiter(client redis.UniversalClient, window Window, logger *zap.Logger) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{redis: client, window: window, logger: logger}
}

// Allow records one attempt against key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	if l == nil || l.redis == nil || l.window.MaxAttempts <= 0 || l.window.Period <= 0 {
		return nil
	}

	count, err := l.incr(ctx, l.key(key))
	if err != nil {
		if l.window.FailOpen {
			l.logger.Warn("limiter unavailable; admitting attempt",
				zap.String("prefix", l.window.Prefix), zap.Error(err))
			return nil
		}
		return err
	}
	if count > int64(l.window.MaxAttempts) {
		return ErrLimited
	}
	return nil
}

func (l *RedisLimiter) incr(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window.Period).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}

// key hashes the caller's identifier so emails never appear in Redis.
func (l *RedisLimiter) key(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return l.window.Prefix + ":" + hex.EncodeToString(sum[:16])
}

// Noop admits everything.
type Noop struct{}

// Allow implements Limiter.
func (Noop) Allow(context.Context, string) error { return nil }
