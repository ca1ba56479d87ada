package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/chatgraph/core"
	"github.com/redis/go-redis/v9"
)

// RedisStoreOptions configures a RedisStore.
type RedisStoreOptions struct {
	// KeyPrefix namespaces checkpoint keys. Defaults to "chatgraph:thread:".
	KeyPrefix string
	// TTL expires idle threads. Zero means keep forever.
	TTL time.Duration
}

// RedisStore persists checkpoints as JSON values in Redis, one key per
// thread. Suitable when conversations must survive a process restart or be
// shared across instances.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a Redis-backed checkpoint store on an existing
// client. The caller owns the client lifecycle.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisStoreOptions)) *RedisStore {
	opts := RedisStoreOptions{KeyPrefix: "chatgraph:thread:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, keyPrefix: opts.KeyPrefix, ttl: opts.TTL}
}

func (s *RedisStore) key(threadID string) string { return s.keyPrefix + threadID }

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, threadID string) (core.State, bool, error) {
	payload, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.State{}, false, nil
	}
	if err != nil {
		return core.State{}, false, fmt.Errorf("load checkpoint %q: %w", threadID, err)
	}

	var state core.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return core.State{}, false, fmt.Errorf("decode checkpoint %q: %w", threadID, err)
	}
	return state, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, threadID string, state core.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint %q: %w", threadID, err)
	}
	if err := s.client.Set(ctx, s.key(threadID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint %q: %w", threadID, err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, threadID string) error {
	return s.Save(ctx, threadID, core.InitialState())
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
