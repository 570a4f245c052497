package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// frequency counter keys are scoped to a calendar day; the TTL only has to
// outlive the day the key belongs to.
const freqKeyTTL = 48 * time.Hour

// RedisStore wraps a redis client and context for counter operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// FreqKey builds the per-(viewer, ad, day) frequency counter key.
func FreqKey(viewerKey string, adID int, day string) string {
	return fmt.Sprintf("freqcap:%s:%d:%s", viewerKey, adID, day)
}

// IncrementFrequency increments the daily impression counter for a viewer
// and ad, creating the key on first use. Returns the new count.
func (r *RedisStore) IncrementFrequency(ctx context.Context, viewerKey string, adID int, day string) (int64, error) {
	key := FreqKey(viewerKey, adID, day)
	val, err := r.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if val == 1 {
		r.Client.Expire(ctx, key, freqKeyTTL)
	}
	return val, nil
}

// GetFrequencyCounts fetches the day's impression counts for a viewer across
// many ads in one pipelined round trip. Missing keys count as zero. Ads whose
// count could not be read are absent from the result so callers can apply
// their own failure policy.
func (r *RedisStore) GetFrequencyCounts(ctx context.Context, viewerKey string, adIDs []int, day string) (map[int]int64, error) {
	if len(adIDs) == 0 {
		return map[int]int64{}, nil
	}

	pipe := r.Client.Pipeline()
	cmds := make(map[int]*redis.StringCmd, len(adIDs))
	for _, id := range adIDs {
		cmds[id] = pipe.Get(ctx, FreqKey(viewerKey, id, day))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("frequency pipeline exec: %w", err)
	}

	out := make(map[int]int64, len(adIDs))
	for id, cmd := range cmds {
		n, err := cmd.Int64()
		if err == redis.Nil {
			out[id] = 0
			continue
		}
		if err != nil {
			continue
		}
		out[id] = n
	}
	return out, nil
}

// DailyStopKey builds the per-(ad, day) daily budget stop key. Unlike the
// lifetime budget hard stop, daily exhaustion clears itself at day rollover,
// so it lives in Redis with a TTL rather than as a persistent flag.
func DailyStopKey(adID int, day string) string {
	return fmt.Sprintf("budgetstop:%d:%s", adID, day)
}

// SetDailyStop marks an ad's daily budget as exhausted for the given day.
func (r *RedisStore) SetDailyStop(ctx context.Context, adID int, day string) error {
	return r.Client.Set(ctx, DailyStopKey(adID, day), "1", freqKeyTTL).Err()
}

// GetDailyStops reports which of the given ads have hit their daily budget
// today, in one pipelined round trip. Ads whose key could not be read are
// absent from the result.
func (r *RedisStore) GetDailyStops(ctx context.Context, adIDs []int, day string) (map[int]bool, error) {
	if len(adIDs) == 0 {
		return map[int]bool{}, nil
	}

	pipe := r.Client.Pipeline()
	cmds := make(map[int]*redis.IntCmd, len(adIDs))
	for _, id := range adIDs {
		cmds[id] = pipe.Exists(ctx, DailyStopKey(id, day))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("daily stop pipeline exec: %w", err)
	}

	out := make(map[int]bool, len(adIDs))
	for id, cmd := range cmds {
		n, err := cmd.Result()
		if err != nil {
			continue
		}
		out[id] = n > 0
	}
	return out, nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
