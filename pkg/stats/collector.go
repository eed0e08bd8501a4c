package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "placer"

var (
	cycleStat = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cycle", "stat"),
		"Counters from the most recent placement cycle, across all tiers.",
		[]string{"counter"}, nil,
	)
	cycleTierStat = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cycle", "tier_stat"),
		"Counters from the most recent placement cycle, per tier.",
		[]string{"tier", "counter"}, nil,
	)
	cyclesTotal = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "cycles_total"),
		"Number of placement cycles published.",
		nil, nil,
	)
)

// Collector exports the Stats of the most recent cycle to prometheus. It
// implements prometheus.Collector.
type Collector struct {
	mu     sync.RWMutex
	last   *Stats
	cycles uint64
}

func NewCollector() *Collector {
	return &Collector{last: New()}
}

// Publish replaces the exported stats with those of a newly completed cycle.
// The given Stats must not be modified afterwards.
func (c *Collector) Publish(s *Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = s
	c.cycles += 1
}

// Last returns the most recently published stats.
func (c *Collector) Last() *Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cycleStat
	ch <- cycleTierStat
	ch <- cyclesTotal
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch <- prometheus.MustNewConstMetric(cyclesTotal, prometheus.CounterValue, float64(c.cycles))

	for k, v := range c.last.global {
		ch <- prometheus.MustNewConstMetric(cycleStat, prometheus.GaugeValue, float64(v), k)
	}

	for tier, t := range c.last.tiers {
		for k, v := range t {
			ch <- prometheus.MustNewConstMetric(cycleTierStat, prometheus.GaugeValue, float64(v), tier, k)
		}
	}
}
