package harness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantlab/stratrun/internal/sim"
)

// ResultCache memoizes completed run results keyed by a deterministic hash
// of strategy, parameters and window. A cache is an optimization only: any
// failure degrades to recomputing the run.
type ResultCache interface {
	Get(ctx context.Context, key string) (*sim.Result, bool, error)
	Set(ctx context.Context, key string, result *sim.Result) error
}

// cacheKey derives the memoization key for one run. Parameter names are
// sorted so logically equal parameter sets hash identically.
func cacheKey(strategyName string, params map[string]float64, start, end time.Time) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", strategyName, start.UnixNano(), end.UnixNano())
	for _, name := range names {
		fmt.Fprintf(h, "|%s=%g", name, params[name])
	}
	return "stratrun:result:" + hex.EncodeToString(h.Sum(nil))
}

// RedisCache is a ResultCache backed by redis, wrapped in a circuit
// breaker so a dead cache server degrades the sweep to recompute instead
// of stalling every run on connection timeouts.
type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
}

// NewRedisCache creates a redis-backed result cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "result-cache",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Result cache breaker state change")
		},
	})

	return &RedisCache{client: client, breaker: breaker, ttl: ttl}
}

// Get implements ResultCache
func (c *RedisCache) Get(ctx context.Context, key string) (*sim.Result, bool, error) {
	payload, err := c.breaker.Execute(func() (interface{}, error) {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("result cache get: %w", err)
	}
	if payload == nil {
		return nil, false, nil
	}

	var result sim.Result
	if err := json.Unmarshal(payload.([]byte), &result); err != nil {
		// A corrupt entry is treated as a miss, not a failure
		log.Debug().Err(err).Str("key", key).Msg("Discarding corrupt cache entry")
		return nil, false, nil
	}
	return &result, true, nil
}

// Set implements ResultCache
func (c *RedisCache) Set(ctx context.Context, key string, result *sim.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("result cache encode: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, raw, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("result cache set: %w", err)
	}
	return nil
}
