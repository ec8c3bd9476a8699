package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"relay-core/internal/domain/entity"
)

// Redis keys. Counters rely on Redis atomic increments so concurrent
// requests never lose updates.
const (
	keyTokens   = "usage:tokens"
	keyCost     = "usage:cost"
	keyRequests = "usage:requests"
	keyPerModel = "usage:models"

	prefKeyPrefix = "pref:"
)

// RedisUsageStore persists per-tier model preferences and the running
// usage counters.
type RedisUsageStore struct {
	client *redis.Client
}

func NewRedisUsageStore(client *redis.Client) *RedisUsageStore {
	return &RedisUsageStore{client: client}
}

// GetPreference loads a tier's preference; an unset tier yields the zero
// preference with AutoShift off rather than an error.
func (s *RedisUsageStore) GetPreference(ctx context.Context, tier entity.Tier) (entity.ModelPreference, error) {
	if !entity.ValidTier(tier) {
		return entity.ModelPreference{}, fmt.Errorf("%w: %q", entity.ErrUnknownTier, tier)
	}

	vals, err := s.client.HGetAll(ctx, prefKeyPrefix+string(tier)).Result()
	if err != nil {
		return entity.ModelPreference{}, fmt.Errorf("load preference: %w", err)
	}

	pref := entity.ModelPreference{
		Primary:  entity.ModelRef{Provider: vals["primary_provider"], Model: vals["primary_model"]},
		Fallback: entity.ModelRef{Provider: vals["fallback_provider"], Model: vals["fallback_model"]},
	}
	pref.AutoShift, _ = strconv.ParseBool(vals["auto_shift"])
	return pref, nil
}

// SetPreference overwrites a tier's preference in one round trip. Every
// mutation is flushed immediately; there is no in-process copy.
func (s *RedisUsageStore) SetPreference(ctx context.Context, tier entity.Tier, pref entity.ModelPreference) error {
	if !entity.ValidTier(tier) {
		return fmt.Errorf("%w: %q", entity.ErrUnknownTier, tier)
	}

	return s.client.HSet(ctx, prefKeyPrefix+string(tier),
		"primary_provider", pref.Primary.Provider,
		"primary_model", pref.Primary.Model,
		"fallback_provider", pref.Fallback.Provider,
		"fallback_model", pref.Fallback.Model,
		"auto_shift", strconv.FormatBool(pref.AutoShift),
	).Err()
}

// RecordUsage books one successful adapter call. The request count moves
// on every call; token and cost counters only when the backend reported
// tokens. The increments ride a pipeline; each is individually atomic.
func (s *RedisUsageStore) RecordUsage(ctx context.Context, model string, tokens int, costUSD float64) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, keyRequests)
	if tokens > 0 {
		pipe.IncrBy(ctx, keyTokens, int64(tokens))
		pipe.IncrByFloat(ctx, keyCost, costUSD)
		if model != "" {
			pipe.HIncrBy(ctx, keyPerModel, model, int64(tokens))
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot reads the counters; missing keys read as zero.
func (s *RedisUsageStore) Snapshot(ctx context.Context) (entity.UsageSnapshot, error) {
	var snap entity.UsageSnapshot

	if v, err := s.client.Get(ctx, keyTokens).Result(); err == nil {
		snap.TokensConsumed, _ = strconv.ParseInt(v, 10, 64)
	} else if err != redis.Nil {
		return snap, err
	}
	if v, err := s.client.Get(ctx, keyCost).Result(); err == nil {
		snap.CostUSDAccrued, _ = strconv.ParseFloat(v, 64)
	} else if err != redis.Nil {
		return snap, err
	}
	if v, err := s.client.Get(ctx, keyRequests).Result(); err == nil {
		snap.RequestCount, _ = strconv.ParseInt(v, 10, 64)
	} else if err != redis.Nil {
		return snap, err
	}

	perModel, err := s.client.HGetAll(ctx, keyPerModel).Result()
	if err != nil && err != redis.Nil {
		return snap, err
	}
	if len(perModel) > 0 {
		snap.PerModel = make(map[string]int64, len(perModel))
		for model, v := range perModel {
			snap.PerModel[model], _ = strconv.ParseInt(v, 10, 64)
		}
	}
	return snap, nil
}

// Reset zeroes every counter. Preferences are untouched.
func (s *RedisUsageStore) Reset(ctx context.Context) error {
	return s.client.Del(ctx, keyTokens, keyCost, keyRequests, keyPerModel).Err()
}
