// Package metrics exports cache activity to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adeilh/rakh-cache/cache"
	"github.com/adeilh/rakh-cache/cache/memory"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "rakh"

// Observer counts cache events. It satisfies memory.Observer.
type Observer struct {
	Hits        prometheus.Counter
	Misses      prometheus.Counter
	Evictions   prometheus.Counter
	Expirations prometheus.Counter
	Sets        prometheus.Counter
	Clears      prometheus.Counter
	Cleared     prometheus.Counter
}

var _ memory.Observer = (*Observer)(nil)

// NewObserver registers the event counters on reg. A nil reg registers on
// prometheus.DefaultRegisterer.
func NewObserver(reg prometheus.Registerer, namespace string) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		})
	}
	return &Observer{
		Hits:        counter("hits_total", "Lookups that found a live entry"),
		Misses:      counter("misses_total", "Lookups that found nothing or an expired entry"),
		Evictions:   counter("evictions_total", "Entries removed to respect the size bound"),
		Expirations: counter("expirations_total", "Entries removed lazily after their TTL elapsed"),
		Sets:        counter("sets_total", "Insertions and overwrites"),
		Clears:      counter("clears_total", "Calls to Clear"),
		Cleared:     counter("cleared_entries_total", "Entries discarded by Clear"),
	}
}

func (o *Observer) Hit(string)    { o.Hits.Inc() }
func (o *Observer) Miss(string)   { o.Misses.Inc() }
func (o *Observer) Expire(string) { o.Expirations.Inc() }
func (o *Observer) Evict(string)  { o.Evictions.Inc() }
func (o *Observer) Set(string)    { o.Sets.Inc() }

func (o *Observer) Clear(removed int) {
	o.Clears.Inc()
	o.Cleared.Add(float64(removed))
}

// StatsCollector reports a store's size and hit rate at scrape time.
type StatsCollector struct {
	store   cache.StatsReporter
	timeout time.Duration

	size    *prometheus.Desc
	hitRate *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector builds a collector for store. Register it with
// reg.MustRegister.
func NewStatsCollector(store cache.StatsReporter, namespace string) *StatsCollector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &StatsCollector{
		store:   store,
		timeout: 2 * time.Second,
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entries"),
			"Entries currently held, including expired ones not yet reclaimed",
			nil, nil,
		),
		hitRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hit_rate_percent"),
			"Hits as a percentage of lookups since the last clear",
			nil, nil,
		),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.hitRate
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.store.Stats(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.size, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(stats.Size))
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, stats.HitRate)
}
