package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dispatch:session:"

// RedisStore persists session state in Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to addr and validates connectivity.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) SaveTranscript(ctx context.Context, sessionID, text string) error {
	return s.set(ctx, sessionID, "transcript", text)
}

func (s *RedisStore) LoadTranscript(ctx context.Context, sessionID string) (string, error) {
	return s.get(ctx, sessionID, "transcript")
}

func (s *RedisStore) SaveSummary(ctx context.Context, sessionID, summary string) error {
	return s.set(ctx, sessionID, "summary", summary)
}

func (s *RedisStore) LoadSummary(ctx context.Context, sessionID string) (string, error) {
	return s.get(ctx, sessionID, "summary")
}

func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	return s.client.Del(ctx, redisKeyPrefix+sessionID).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) set(ctx context.Context, sessionID, field, value string) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	key := redisKeyPrefix + sessionID
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, value)
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) get(ctx context.Context, sessionID, field string) (string, error) {
	if err := validSession(sessionID); err != nil {
		return "", err
	}
	v, err := s.client.HGet(ctx, redisKeyPrefix+sessionID, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
