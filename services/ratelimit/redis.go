package ratelimit

import (
	"context"
	"strconv"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// RedisLimiter is a sliding-window limiter backed by Redis sorted sets, for
// deployments where several gateway instances must share one window per
// key. Each admission is a ZSET member scored by its unix-nano timestamp.
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter over the given client.
func NewRedisLimiter(client *rdb.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow implements Limiter. The purge, count and admission run in one
// MULTI/EXEC pipeline so concurrent gateway instances cannot both take the
// last slot.
func (l *RedisLimiter) Allow(ctx context.Context, key string, policy Policy) (Result, error) {
	if policy.Max <= 0 || policy.Window <= 0 {
		return Result{Allowed: true, Remaining: 0}, nil
	}

	redisKey := l.prefix + key
	now := l.now()
	cutoff := now.Add(-policy.Window).UnixNano()
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(cutoff, 10))
	addCmd := pipe.ZAdd(ctx, redisKey, rdb.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.Expire(ctx, redisKey, policy.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	_ = addCmd

	count := countCmd.Val()
	if count <= int64(policy.Max) {
		return Result{Allowed: true, Remaining: policy.Max - int(count)}, nil
	}

	// Over the limit: withdraw this admission so rejected traffic does not
	// occupy the window, then compute when the oldest live slot ages out.
	_ = l.client.ZRem(ctx, redisKey, member).Err()

	retryAfter := time.Second
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		oldestAt := time.Unix(0, int64(oldest[0].Score))
		retryAfter = ceilSeconds(oldestAt.Add(policy.Window).Sub(now))
	}

	return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
}
