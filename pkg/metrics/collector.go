// Package metrics wires the engine's operation counts and structural gauges
// into Prometheus, registering them against the default registry via
// promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusHit  = "hit"
	statusMiss = "miss"
)

// Collector holds every metric the bptreefile engine reports. A nil
// *Collector is never passed to the engine directly. Callers opt in via
// bptreefile.WithMetrics(NewCollector()), and every call site on the engine
// side guards on a nil receiver field instead of a nil Collector.
type Collector struct {
	findTotal   *prometheus.CounterVec
	updateTotal *prometheus.CounterVec
	insertTotal *prometheus.CounterVec
	eraseTotal  *prometheus.CounterVec
	rangeSize   prometheus.Histogram

	treeHeight   prometheus.Gauge
	nodeCount    prometheus.Gauge
	dataSizeByte prometheus.Gauge
}

// NewCollector registers and returns a fresh Collector. Calling it more than
// once per process will panic on duplicate registration, as promauto does
// for any metric name registered twice.
func NewCollector() *Collector {
	return &Collector{
		findTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freyja_engine_find_total",
				Help: "Total number of point lookups, by hit/miss outcome.",
			},
			[]string{"outcome"},
		),
		updateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freyja_engine_update_total",
				Help: "Total number of updates, by whether the fallback erase+reinsert path was taken.",
			},
			[]string{"path"},
		),
		insertTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freyja_engine_insert_total",
				Help: "Total number of inserts, by whether the key was already present.",
			},
			[]string{"outcome"},
		),
		eraseTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freyja_engine_erase_total",
				Help: "Total number of erases, by hit/miss outcome.",
			},
			[]string{"outcome"},
		),
		rangeSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "freyja_engine_range_result_size",
				Help:    "Number of values returned per range query.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		treeHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "freyja_engine_tree_height",
				Help: "Current height of the B+tree.",
			},
		),
		nodeCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "freyja_engine_node_count",
				Help: "Total number of index nodes ever allocated (the allocator never reclaims).",
			},
		),
		dataSizeByte: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "freyja_engine_data_size_bytes",
				Help: "Current size of the data file in bytes.",
			},
		),
	}
}

func outcome(hit bool) string {
	if hit {
		return statusHit
	}
	return statusMiss
}

// ObserveFind records a point lookup's outcome.
func (c *Collector) ObserveFind(hit bool) {
	c.findTotal.WithLabelValues(outcome(hit)).Inc()
}

// ObserveUpdate records an update, distinguishing the in-place path from the
// capacity-exceeded erase+reinsert fallback.
func (c *Collector) ObserveUpdate(fellBack bool) {
	path := "in_place"
	if fellBack {
		path = "erase_reinsert"
	}
	c.updateTotal.WithLabelValues(path).Inc()
}

// ObserveInsert records an insert's outcome.
func (c *Collector) ObserveInsert(inserted bool) {
	c.insertTotal.WithLabelValues(outcome(inserted)).Inc()
}

// ObserveErase records an erase's outcome.
func (c *Collector) ObserveErase(erased bool) {
	c.eraseTotal.WithLabelValues(outcome(erased)).Inc()
}

// ObserveRange records how many values a range query returned.
func (c *Collector) ObserveRange(count int) {
	c.rangeSize.Observe(float64(count))
}

// SetTreeHeight reports the tree's current height.
func (c *Collector) SetTreeHeight(height float64) {
	c.treeHeight.Set(height)
}

// SetNodeCount reports the index file's current node count.
func (c *Collector) SetNodeCount(count float64) {
	c.nodeCount.Set(count)
}

// SetDataSizeBytes reports the data file's current size.
func (c *Collector) SetDataSizeBytes(size float64) {
	c.dataSizeByte.Set(size)
}
