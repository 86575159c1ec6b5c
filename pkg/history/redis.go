package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
)

// Redis keys. The index is a sorted set of ids scored by creation time in
// milliseconds; each entry is a JSON string under its own key.
const (
	redisIndexKey    = "minutes:history:index"
	redisEntryPrefix = "minutes:history:entry:"
)

func redisEntryKey(id string) string {
	return redisEntryPrefix + id
}

// RedisStore keeps entries in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a store using client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis connects to addr and returns a store. The password, if any, is
// taken from MINUTES_REDIS_PASSWORD.
func OpenRedis(ctx context.Context, addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("MINUTES_REDIS_PASSWORD"),
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("testing connection: %w", err)
	}
	return NewRedisStore(client), nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisEntryKey(e.ID), data, 0)
	pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(e.CreatedAt.UnixMilli()), Member: e.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing entry: %w", err)
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history index: %w", err)
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisEntryKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history entries: %w", err)
	}

	entries := make([]Entry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index points at a missing entry; skip it.
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decoding entry %s: %w", ids[i], err)
		}
		entries = append(entries, e)
	}
	return newestFirst(entries, limit), nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Entry, error) {
	data, err := s.client.Get(ctx, redisEntryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding entry %s: %w", id, err)
	}
	return &e, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	ids, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("reading history index: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, redisIndexKey)
	for _, id := range ids {
		keys = append(keys, redisEntryKey(id))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Close implements Store.
// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
