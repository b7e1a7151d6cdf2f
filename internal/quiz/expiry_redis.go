package quiz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisExpiryStore keeps publication expiration markers in Redis as unix
// timestamps, one key per quiz. No TTL is set on the key itself: expiry is
// evaluated lazily against the clock, and the key is removed when the quiz
// is unpublished.
type RedisExpiryStore struct {
	client *redis.Client
}

func NewRedisExpiryStore(client *redis.Client) *RedisExpiryStore {
	return &RedisExpiryStore{client: client}
}

func (s *RedisExpiryStore) GetExpiry(ctx context.Context, quizID int64) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key(quizID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get publication expiry: %w", err)
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse publication expiry %q: %w", raw, err)
	}
	return time.Unix(unix, 0), true, nil
}

func (s *RedisExpiryStore) SetExpiry(ctx context.Context, quizID int64, at time.Time) error {
	if err := s.client.Set(ctx, s.key(quizID), strconv.FormatInt(at.Unix(), 10), 0).Err(); err != nil {
		return fmt.Errorf("set publication expiry: %w", err)
	}
	return nil
}

func (s *RedisExpiryStore) DeleteExpiry(ctx context.Context, quizID int64) error {
	if err := s.client.Del(ctx, s.key(quizID)).Err(); err != nil {
		return fmt.Errorf("delete publication expiry: %w", err)
	}
	return nil
}

func (s *RedisExpiryStore) key(quizID int64) string {
	return fmt.Sprintf("quiz:%d:expiration", quizID)
}
