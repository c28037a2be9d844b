package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisCounter keeps per-user usage in a Redis sorted set scored by timestamp,
// giving every engine node the same view of a user's window. This is the
// substitution for MemoryCounter in horizontally scaled deployments.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter constructs a counter over an existing Redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "gema:exec:usage:"}
}

func (c *RedisCounter) key(userID string) string {
	return c.prefix + userID
}

func (c *RedisCounter) Record(ctx context.Context, userID string, t time.Time) error {
	key := c.key(userID)
	// The uuid suffix keeps two events in the same nanosecond from deduping.
	member := strconv.FormatInt(t.UnixNano(), 10) + ":" + uuid.NewString()

	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(t.UnixNano()), Member: member})
	// Entries older than the daily window are dead weight; expire the whole
	// key once the user goes quiet.
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(t.Add(-dayWindow).UnixNano(), 10))
	pipe.Expire(ctx, key, dayWindow+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func (c *RedisCounter) CountSince(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	count, err := c.client.ZCount(ctx, c.key(userID),
		strconv.FormatInt(cutoff.UnixNano(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return int(count), nil
}

func (c *RedisCounter) OldestSince(ctx context.Context, userID string, cutoff time.Time) (time.Time, bool, error) {
	members, err := c.client.ZRangeByScore(ctx, c.key(userID), &redis.ZRangeBy{
		Min:   strconv.FormatInt(cutoff.UnixNano(), 10),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest usage: %w", err)
	}
	if len(members) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(strings.SplitN(members[0], ":", 2)[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse usage member: %w", err)
	}
	return time.Unix(0, nanos), true, nil
}
