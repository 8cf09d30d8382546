package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/adeilh/rakh-cache/cache"
	"github.com/adeilh/rakh-cache/cache/memory"
)

func TestObserverCountsCacheEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewObserver(reg, "")

	c, err := memory.New[string](memory.WithMaxSize(1), memory.WithObserver(obs))
	if err != nil {
		t.Fatalf("memory.New() error = %v", err)
	}
	_ = c.Set("a", "1")
	_ = c.Set("b", "2") // evicts a
	c.Get("a")
	c.Get("b")
	c.Clear()

	cases := map[string]struct {
		counter prometheus.Counter
		want    float64
	}{
		"hits":      {obs.Hits, 1},
		"misses":    {obs.Misses, 1},
		"evictions": {obs.Evictions, 1},
		"sets":      {obs.Sets, 2},
		"clears":    {obs.Clears, 1},
		"cleared":   {obs.Cleared, 1},
	}
	for name, tc := range cases {
		if got := testutil.ToFloat64(tc.counter); got != tc.want {
			t.Errorf("%s = %v, want %v", name, got, tc.want)
		}
	}

	if n, err := testutil.GatherAndCount(reg, "rakh_cache_hits_total"); err != nil || n != 1 {
		t.Fatalf("GatherAndCount() = %d, %v", n, err)
	}
}

type statsStub struct {
	stats cache.Stats
	err   error
}

func (s statsStub) Stats(context.Context) (cache.Stats, error) { return s.stats, s.err }

func TestStatsCollectorGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewStatsCollector(statsStub{stats: cache.Stats{Size: 3, HitRate: 75}}, "test"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_GAUGE {
			t.Fatalf("%s has type %v, want gauge", mf.GetName(), mf.GetType())
		}
		got[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	if got["test_cache_entries"] != 3 {
		t.Fatalf("entries = %v, want 3", got["test_cache_entries"])
	}
	if got["test_cache_hit_rate_percent"] != 75 {
		t.Fatalf("hit rate = %v, want 75", got["test_cache_hit_rate_percent"])
	}
}

func TestStatsCollectorReportsError(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewStatsCollector(statsStub{err: errors.New("backend down")}, ""))
	if _, err := reg.Gather(); err == nil {
		t.Fatalf("Gather() expected error from failing store")
	}
}
