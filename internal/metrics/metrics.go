// Package metrics exposes pool and autoscaler state as Prometheus gauges and
// counters, scraped rather than pushed: a Collector snapshots one pool on
// every call to Collect instead of updating gauges inline on the
// hot submit/release path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sagan/gridgen/internal/pool"
)

// PoolCollector adapts a pool.Pool's Stats() into the Prometheus collector
// interface, so registering one per pool is enough; no manual gauge.Set
// calls are needed anywhere in the hot path.
type PoolCollector struct {
	pool *pool.Pool

	running   *prometheus.Desc
	limit     *prometheus.Desc
	completed *prometheus.Desc
	available *prometheus.Desc
}

func NewPoolCollector(p *pool.Pool) *PoolCollector {
	labels := prometheus.Labels{"pool": p.Name()}
	return &PoolCollector{
		pool: p,
		running: prometheus.NewDesc(
			"gridgen_pool_running", "Units currently executing in this pool.", nil, labels),
		limit: prometheus.NewDesc(
			"gridgen_pool_limit", "Current concurrency limit for this pool.", nil, labels),
		completed: prometheus.NewDesc(
			"gridgen_pool_completed_total", "Units that have finished executing in this pool.", nil, labels),
		available: prometheus.NewDesc(
			"gridgen_pool_available_slots", "Free admission slots in this pool.", nil, labels),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.running
	ch <- c.limit
	ch <- c.completed
	ch <- c.available
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, float64(s.Running))
	ch <- prometheus.MustNewConstMetric(c.limit, prometheus.GaugeValue, float64(s.Limit))
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(s.Completed))
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(s.AvailableSlots))
}

// AutoscaleEvents counts scale-up/scale-down decisions per pool, labeled by
// direction, for alerting on thrash.
var AutoscaleEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gridgen_autoscale_events_total",
		Help: "Autoscaler scale-up/scale-down decisions, by pool and direction.",
	},
	[]string{"pool", "direction"},
)

// Register wires both pools' collectors and the autoscale counter into reg.
func Register(reg *prometheus.Registry, defaultPool, luminaPool *pool.Pool) error {
	for _, c := range []prometheus.Collector{
		NewPoolCollector(defaultPool),
		NewPoolCollector(luminaPool),
		AutoscaleEvents,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
