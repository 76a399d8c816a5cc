package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/jonathan/data-augmenter/internal/types"
)

const redisAppendRetries = 10

// RedisStore keeps each pipeline's log in a Redis list with a companion key
// holding the latest event. Appends use WATCH on the latest key so concurrent
// writers for one pipeline cannot interleave.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store using keys under prefix. A positive ttl expires
// idle logs.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "augmenter:progress"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) eventsKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s:events", s.prefix, id)
}

func (s *RedisStore) latestKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s:latest", s.prefix, id)
}

// Append adds an event to the pipeline's log.
func (s *RedisStore) Append(ctx context.Context, event types.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("progress: marshal event: %w", err)
	}
	eventsKey, latestKey := s.eventsKey(event.PipelineID), s.latestKey(event.PipelineID)

	txf := func(tx *redis.Tx) error {
		prev, err := decodeLatest(tx.Get(ctx, latestKey))
		if err != nil {
			return err
		}
		if err := CheckAppend(prev, event); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, eventsKey, payload)
			pipe.Set(ctx, latestKey, payload, s.ttl)
			if s.ttl > 0 {
				pipe.Expire(ctx, eventsKey, s.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < redisAppendRetries; i++ {
		err := s.client.Watch(ctx, txf, latestKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("progress: append to %s kept conflicting", event.PipelineID)
}

func decodeLatest(cmd *redis.StringCmd) (*types.ProgressEvent, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress: read latest: %w", err)
	}
	var e types.ProgressEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("progress: decode latest: %w", err)
	}
	return &e, nil
}

// Latest returns the most recent event of a pipeline.
func (s *RedisStore) Latest(ctx context.Context, id uuid.UUID) (types.ProgressEvent, error) {
	e, err := decodeLatest(s.client.Get(ctx, s.latestKey(id)))
	if err != nil {
		return types.ProgressEvent{}, err
	}
	if e == nil {
		return types.ProgressEvent{}, ErrNotFound
	}
	return *e, nil
}

// Events returns the pipeline's log in append order.
func (s *RedisStore) Events(ctx context.Context, id uuid.UUID) ([]types.ProgressEvent, error) {
	raws, err := s.client.LRange(ctx, s.eventsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("progress: read events: %w", err)
	}
	if len(raws) == 0 {
		return nil, ErrNotFound
	}
	events := make([]types.ProgressEvent, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal([]byte(raw), &events[i]); err != nil {
			return nil, fmt.Errorf("progress: decode event %d: %w", i, err)
		}
	}
	return events, nil
}

// Delete drops the pipeline's log.
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, s.eventsKey(id), s.latestKey(id)).Err(); err != nil {
		return fmt.Errorf("progress: delete: %w", err)
	}
	return nil
}
