package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore stores each value under "<prefix><key>" and its revision under
// "<prefix><key>:rev". CompareAndSwap uses WATCH/MULTI on both keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keys(key string) (string, string) {
	k := s.prefix + key
	return k, k + ":rev"
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, int64, error) {
	valKey, revKey := s.keys(key)
	vals, err := s.client.MGet(ctx, valKey, revKey).Result()
	if err != nil {
		return "", 0, fmt.Errorf("redis mget %s: %w", valKey, err)
	}
	value, ok := vals[0].(string)
	if !ok {
		return "", 0, ErrNotFound
	}
	var rev int64
	if raw, ok := vals[1].(string); ok {
		rev, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("redis revision %s: %w", revKey, err)
		}
	}
	return value, rev, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) (int64, error) {
	valKey, revKey := s.keys(key)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, valKey, value, 0)
		incr = pipe.Incr(ctx, revKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis set %s: %w", valKey, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key, value string, revision int64) (int64, error) {
	valKey, revKey := s.keys(key)
	var next int64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, revKey).Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != revision {
			next = current
			return ErrRevisionMismatch
		}
		var incr *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, valKey, value, 0)
			incr = pipe.Incr(ctx, revKey)
			return nil
		})
		if err != nil {
			return err
		}
		next = incr.Val()
		return nil
	}, valKey, revKey)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, ErrRevisionMismatch):
		return next, ErrRevisionMismatch
	case errors.Is(err, redis.TxFailedErr):
		return 0, ErrRevisionMismatch
	default:
		return 0, fmt.Errorf("redis cas %s: %w", valKey, err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	valKey, revKey := s.keys(key)
	if err := s.client.Del(ctx, valKey, revKey).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", valKey, err)
	}
	return nil
}
