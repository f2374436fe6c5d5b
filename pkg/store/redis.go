package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/castlink/castlink/pkg/core"
)

const (
	// KeyPrefixConfig is the prefix for per-service config keys.
	KeyPrefixConfig = "castlink:config:"
	// KeyAllConfigs is the set of all known service UUIDs.
	KeyAllConfigs = "castlink:configs:all"

	// DefaultConfigTTL bounds how long an unrefreshed pairing record lives.
	DefaultConfigTTL = 30 * 24 * time.Hour
)

// ConfigKey returns the Redis key for a service config by UUID.
func ConfigKey(uuid string) string {
	return KeyPrefixConfig + uuid
}

// RedisStore persists service configs in Redis so pairing keys survive
// process restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    DefaultConfigTTL,
	}
}

// Get retrieves a config by service UUID.
func (s *RedisStore) Get(ctx context.Context, uuid string) (*core.ServiceConfig, error) {
	data, err := s.client.Get(ctx, ConfigKey(uuid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	var cfg core.ServiceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Put adds or replaces a config and refreshes its TTL.
func (s *RedisStore) Put(ctx context.Context, cfg *core.ServiceConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := s.client.Set(ctx, ConfigKey(cfg.UUID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := s.client.SAdd(ctx, KeyAllConfigs, cfg.UUID).Err(); err != nil {
		return fmt.Errorf("failed to add config to set: %w", err)
	}
	return nil
}

// Delete removes a config.
func (s *RedisStore) Delete(ctx context.Context, uuid string) error {
	if err := s.client.Del(ctx, ConfigKey(uuid)).Err(); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	if err := s.client.SRem(ctx, KeyAllConfigs, uuid).Err(); err != nil {
		return fmt.Errorf("failed to remove config from set: %w", err)
	}
	return nil
}

// All returns every stored config. Entries whose data key expired are
// skipped and pruned from the UUID set.
func (s *RedisStore) All(ctx context.Context) ([]*core.ServiceConfig, error) {
	uuids, err := s.client.SMembers(ctx, KeyAllConfigs).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get config UUIDs: %w", err)
	}

	configs := make([]*core.ServiceConfig, 0, len(uuids))
	for _, uuid := range uuids {
		cfg, err := s.Get(ctx, uuid)
		if errors.Is(err, ErrNotFound) {
			s.client.SRem(ctx, KeyAllConfigs, uuid)
			continue
		}
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
