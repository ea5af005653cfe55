package jobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/analyzr/internal/cache"
	"github.com/kiranshivaraju/analyzr/pkg/models"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// RedisStore keeps each job as a JSON string under analysis:<id>.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A zero ttl keeps jobs forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op: the client is shared and closed by its owner.
func (s *RedisStore) Close() error { return nil }

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Job, error) {
	data, err := s.client.Get(ctx, cache.JobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return decode(data)
}

func (s *RedisStore) Set(ctx context.Context, id string, job *models.Job) error {
	data, err := encode(job)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, cache.JobKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set job %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	iter := s.client.Scan(ctx, 0, cache.JobKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), cache.JobKeyPrefix)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan job keys: %w", err)
	}
	return ids, nil
}

var _ Backend = (*RedisStore)(nil)
