package rebalance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"OpenRebalancer/internal/config"
)

// RedisPlanStore keeps plans as JSON strings with a native Redis TTL.
type RedisPlanStore struct {
	client *redis.Client
	prefix string
}

// NewRedisPlanStore connects and pings the configured Redis.
func NewRedisPlanStore(ctx context.Context, cfg config.RedisConfig) (*RedisPlanStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is empty")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "rebalancer:plans:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisPlanStore{client: client, prefix: prefix}, nil
}

func (s *RedisPlanStore) key(token string) string { return s.prefix + token }

// Save implements PlanStore.
func (s *RedisPlanStore) Save(ctx context.Context, plan *Plan, ttl time.Duration) error {
	payload, err := encodePlan(plan)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(plan.Token), payload, ttl).Err(); err != nil {
		return storageFailure(err, "failed to pin plan in redis")
	}
	return nil
}

// Load implements PlanStore.
func (s *RedisPlanStore) Load(ctx context.Context, token string) (*Plan, error) {
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, storageFailure(err, "failed to load plan from redis")
	}
	plan, err := decodePlan(payload)
	if err != nil {
		return nil, storageFailure(err, "stored plan is corrupt")
	}
	return plan, nil
}

// Close implements PlanStore.
func (s *RedisPlanStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
