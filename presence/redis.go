package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore is a Store kept in Redis: one set of online names and one
// expiring key per last-seen record, all under a common key prefix.
type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed presence store.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := NewRedisStore(client, "tcpchat", 24*time.Hour)
//
// Parameters:
//   - client: The Redis client; the store closes it on Close
//   - prefix: Key namespace, e.g. "tcpchat"
//   - ttl: Expiry of last-seen keys; zero keeps them forever
//
// Returns:
//   - A Store writing to Redis
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) Store {
	return &redisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *redisStore) onlineKey() string {
	return s.prefix + ":online"
}

func (s *redisStore) lastSeenKey(name string) string {
	return fmt.Sprintf("%s:seen:%s", s.prefix, name)
}

// MarkOnline implements Store.
func (s *redisStore) MarkOnline(ctx context.Context, name string) error {
	if err := s.client.SAdd(ctx, s.onlineKey(), name).Err(); err != nil {
		return fmt.Errorf("redis sadd error: %w", err)
	}

	return nil
}

// MarkOffline implements Store. Both writes go in one MULTI/EXEC.
func (s *redisStore) MarkOffline(ctx context.Context, name string) error {
	seen := strconv.FormatInt(time.Now().UnixMilli(), 10)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, s.onlineKey(), name)
		pipe.Set(ctx, s.lastSeenKey(name), seen, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mark offline error: %w", err)
	}

	return nil
}

// LastSeen implements Store.
func (s *redisStore) LastSeen(ctx context.Context, name string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.lastSeenKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}

	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get error: %w", err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid last-seen value %q: %w", val, err)
	}

	return time.UnixMilli(ms), true, nil
}

// Online implements Store.
func (s *redisStore) Online(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.onlineKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers error: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}
