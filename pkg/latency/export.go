package latency

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Recorder's histograms to Prometheus. Scrapes read
// atomic snapshots; they never touch the recording path.
type Collector struct {
	rec       *Recorder
	stageDesc *prometheus.Desc
	totalDesc *prometheus.Desc
	dropDesc  *prometheus.Desc

	droppedEvents func() uint64
}

// NewCollector wraps rec for registration with a prometheus.Registerer.
// droppedEvents, when non-nil, is exported as a counter alongside the
// latency series so backpressure losses are visible on the same scrape.
func NewCollector(rec *Recorder, namespace string, droppedEvents func() uint64) *Collector {
	return &Collector{
		rec: rec,
		stageDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "stage_seconds"),
			"Per-stage order pipeline latency.",
			[]string{"stage"}, nil,
		),
		totalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "total_seconds"),
			"End-to-end order pipeline latency.",
			nil, nil,
		),
		dropDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "events", "dropped_total"),
			"Events lost to queue backpressure.",
			nil, nil,
		),
		droppedEvents: droppedEvents,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stageDesc
	ch <- c.totalDesc
	if c.droppedEvents != nil {
		ch <- c.dropDesc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.rec != nil {
		for cp := Checkpoint(1); cp < numCheckpoints; cp++ {
			h := c.rec.Stage(cp)
			count, sum, bounds := constBuckets(h)
			ch <- prometheus.MustNewConstHistogram(
				c.stageDesc, count, sum, bounds, stageNames[cp])
		}
		count, sum, bounds := constBuckets(c.rec.Total())
		ch <- prometheus.MustNewConstHistogram(c.totalDesc, count, sum, bounds)
	}
	if c.droppedEvents != nil {
		ch <- prometheus.MustNewConstMetric(
			c.dropDesc, prometheus.CounterValue, float64(c.droppedEvents()))
	}
}

// constBuckets converts a power-of-two ns histogram snapshot into the
// cumulative seconds buckets Prometheus expects. Empty tail buckets are
// trimmed to keep scrape size down.
func constBuckets(h *Histogram) (count uint64, sumSeconds float64, bounds map[float64]uint64) {
	buckets, count, sum := h.Snapshot()
	sumSeconds = float64(sum) / 1e9

	last := 0
	for i, c := range buckets {
		if c > 0 {
			last = i
		}
	}

	bounds = make(map[float64]uint64, last+1)
	var cum uint64
	for i := 0; i <= last; i++ {
		cum += buckets[i]
		bounds[float64(BucketBound(i))/1e9] = cum
	}
	return count, sumSeconds, bounds
}
