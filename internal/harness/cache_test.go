package harness

import (
	"context"
	"testing"
	"time"
)

func TestCacheKeyDeterministic(t *testing.T) {
	start := testStart
	end := start.AddDate(0, 0, 30)

	a := cacheKey("momentum", map[string]float64{"lookback": 10, "threshold": 0.05}, start, end)
	b := cacheKey("momentum", map[string]float64{"threshold": 0.05, "lookback": 10}, start, end)
	if a != b {
		t.Error("Key must not depend on parameter map iteration order")
	}

	if a == cacheKey("momentum", map[string]float64{"lookback": 20, "threshold": 0.05}, start, end) {
		t.Error("Different parameters must produce different keys")
	}
	if a == cacheKey("mean_reversion", map[string]float64{"lookback": 10, "threshold": 0.05}, start, end) {
		t.Error("Different strategies must produce different keys")
	}
	if a == cacheKey("momentum", map[string]float64{"lookback": 10, "threshold": 0.05},
		start, end.AddDate(0, 0, 1)) {
		t.Error("Different windows must produce different keys")
	}
}

func TestGridSearchUsesCache(t *testing.T) {
	cache := newFakeCache()
	grid := map[string][]float64{"lookback": {5, 10}}

	run := func() []Row {
		cfg := testHarnessConfig(40)
		cfg.Cache = cache
		rows, err := GridSearch(context.Background(), cfg, grid)
		if err != nil {
			t.Fatalf("GridSearch failed: %v", err)
		}
		return rows
	}

	first := run()
	if cache.sets != 2 {
		t.Errorf("Expected 2 cache writes on cold sweep, got %d", cache.sets)
	}
	for i, row := range first {
		if row.Cached {
			t.Errorf("Row %d marked cached on a cold sweep", i)
		}
	}

	second := run()
	if cache.hits != 2 {
		t.Errorf("Expected 2 cache hits on warm sweep, got %d", cache.hits)
	}
	for i, row := range second {
		if !row.Cached {
			t.Errorf("Row %d not served from cache on warm sweep", i)
		}
		if row.Metrics["sharpe"] != first[i].Metrics["sharpe"] {
			t.Errorf("Row %d cached metrics differ from computed metrics", i)
		}
	}
}

func TestBrokenCacheDegradesToRecompute(t *testing.T) {
	cfg := testHarnessConfig(40)
	cfg.Cache = brokenCache{}

	rows, err := GridSearch(context.Background(), cfg, map[string][]float64{"lookback": {5, 10}})
	if err != nil {
		t.Fatalf("A dead cache must not fail the sweep: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 recomputed rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Cached {
			t.Errorf("Row %d marked cached despite broken cache", i)
		}
	}
}

func TestWalkForwardSharesCacheWithIdenticalWindows(t *testing.T) {
	cache := newFakeCache()
	cfg := testHarnessConfig(120)
	cfg.Cache = cache

	if _, err := WalkForward(context.Background(), cfg, 60, 20); err != nil {
		t.Fatalf("First walk-forward failed: %v", err)
	}
	coldSets := cache.sets

	cfg2 := testHarnessConfig(120)
	cfg2.Cache = cache
	results, err := WalkForward(context.Background(), cfg2, 60, 20)
	if err != nil {
		t.Fatalf("Second walk-forward failed: %v", err)
	}

	if cache.hits != coldSets {
		t.Errorf("Expected %d hits on identical rerun, got %d", coldSets, cache.hits)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 window results, got %d", len(results))
	}
}

func TestCacheKeyPrefix(t *testing.T) {
	key := cacheKey("momentum", nil, testStart, testStart.Add(24*time.Hour))
	const prefix = "stratrun:result:"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		t.Errorf("Key missing namespace prefix: %s", key)
	}
}
