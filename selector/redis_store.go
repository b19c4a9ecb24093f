package selector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ticketpilot:selector_stats:"

// RedisStore keeps Stats in Redis hashes so multiple hosts can share one
// selector history. One hash per logical field; counts are updated with
// HINCRBY, which makes every Record an atomic read-modify-write on the
// server.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisStore{client: rdb}
}

func (rs *RedisStore) Record(field, selector string, success bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := redisKeyPrefix + field
	pipe := rs.client.TxPipeline()
	pipe.HIncrBy(ctx, key, selector+"|attempts", 1)
	if success {
		pipe.HIncrBy(ctx, key, selector+"|successes", 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (rs *RedisStore) Snapshot() (Stats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats := Stats{}
	iter := rs.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		field := strings.TrimPrefix(key, redisKeyPrefix)
		entries, err := rs.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", key, err)
		}
		sels := make(map[string]Stat)
		for hashField, raw := range entries {
			// split on the last separator: selectors themselves may contain |
			cut := strings.LastIndex(hashField, "|")
			if cut < 0 {
				continue
			}
			sel, kind := hashField[:cut], hashField[cut+1:]
			var n int
			fmt.Sscanf(raw, "%d", &n)
			st := sels[sel]
			switch kind {
			case "attempts":
				st.Attempts = n
			case "successes":
				st.Successes = n
			}
			sels[sel] = st
		}
		if len(sels) > 0 {
			stats[field] = sels
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
