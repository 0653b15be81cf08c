package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStorage persists thread states in Redis. Records carry no TTL:
// threads persist indefinitely, including WAITING_FOR_APPROVAL, which
// has no timeout.
type RedisStorage struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisStorage wraps the provided client.
func NewRedisStorage(client *redis.Client, tracer trace.Tracer) *RedisStorage {
	if client == nil {
		panic("state: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("proposal.internal.state.redis")
	}
	return &RedisStorage{redis: client, tracer: tracer}
}

func redisKey(key ThreadKey) string {
	return fmt.Sprintf("thread:%s", key.String())
}

func (s *RedisStorage) Load(ctx context.Context, key ThreadKey) (*ThreadState, error) {
	ctx, span := s.tracer.Start(ctx, "state.redis.load")
	defer span.End()

	data, err := s.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrThreadNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("state: load thread from redis: %w", err)
	}

	var ts ThreadState
	if err := json.Unmarshal(data, &ts); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("state: decode thread record: %w", err)
	}
	return &ts, nil
}

func (s *RedisStorage) Save(ctx context.Context, ts *ThreadState) error {
	ctx, span := s.tracer.Start(ctx, "state.redis.save")
	defer span.End()

	data, err := json.Marshal(ts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("state: encode thread record: %w", err)
	}
	if err := s.redis.Set(ctx, redisKey(ts.Key()), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("state: persist thread to redis: %w", err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, key ThreadKey) error {
	ctx, span := s.tracer.Start(ctx, "state.redis.delete")
	defer span.End()

	if err := s.redis.Del(ctx, redisKey(key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("state: delete thread from redis: %w", err)
	}
	return nil
}
