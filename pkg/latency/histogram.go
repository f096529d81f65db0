// Package latency records per-stage pipeline timings with fixed-size
// power-of-two histograms. Recording is a clock read plus one atomic
// increment; aggregation and export never run on the recording path.
package latency

import (
	"math/bits"
	"sync/atomic"
)

// numBuckets covers durations up to 2^63-1 ns in power-of-two buckets.
const numBuckets = 64

// Histogram counts duration samples in power-of-two nanosecond buckets.
// Bucket i holds samples with upper bound 2^i - 1 ns. All fields are
// updated atomically; Record is safe from any goroutine and never
// allocates.
type Histogram struct {
	buckets [numBuckets]uint64
	count   uint64
	sum     uint64
	max     uint64
}

// bucketFor maps a duration to its bucket index.
func bucketFor(nanos int64) int {
	if nanos <= 0 {
		return 0
	}
	return bits.Len64(uint64(nanos)) - 1
}

// BucketBound returns the inclusive upper bound of bucket i in ns.
func BucketBound(i int) uint64 {
	if i >= numBuckets-1 {
		return 1<<63 - 1
	}
	return 1<<(uint(i)+1) - 1
}

// Record adds one duration sample.
func (h *Histogram) Record(nanos int64) {
	if nanos < 0 {
		nanos = 0
	}
	atomic.AddUint64(&h.buckets[bucketFor(nanos)], 1)
	atomic.AddUint64(&h.count, 1)
	atomic.AddUint64(&h.sum, uint64(nanos))

	for {
		cur := atomic.LoadUint64(&h.max)
		if uint64(nanos) <= cur || atomic.CompareAndSwapUint64(&h.max, cur, uint64(nanos)) {
			return
		}
	}
}

// Count returns the number of recorded samples.
func (h *Histogram) Count() uint64 { return atomic.LoadUint64(&h.count) }

// Sum returns the total of all samples in ns.
func (h *Histogram) Sum() uint64 { return atomic.LoadUint64(&h.sum) }

// Max returns the largest sample seen in ns.
func (h *Histogram) Max() uint64 { return atomic.LoadUint64(&h.max) }

// Mean returns the average sample in ns, 0 when empty.
func (h *Histogram) Mean() float64 {
	c := h.Count()
	if c == 0 {
		return 0
	}
	return float64(h.Sum()) / float64(c)
}

// Snapshot copies the bucket counts for aggregation off the hot path.
// Concurrent recording may skew a snapshot by in-flight samples; counts
// are monotonic so the skew is bounded and never negative.
func (h *Histogram) Snapshot() (buckets [numBuckets]uint64, count, sum uint64) {
	for i := range buckets {
		buckets[i] = atomic.LoadUint64(&h.buckets[i])
	}
	return buckets, h.Count(), h.Sum()
}

// Percentile returns the upper bound of the bucket containing the p-th
// percentile sample (0 < p <= 1), in ns. Resolution is the bucket
// width, which is the documented trade-off for allocation-free
// recording.
func (h *Histogram) Percentile(p float64) uint64 {
	buckets, count, _ := h.Snapshot()
	if count == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	rank := uint64(p * float64(count))
	if rank == 0 {
		rank = 1
	}
	var seen uint64
	for i, c := range buckets {
		seen += c
		if seen >= rank {
			return BucketBound(i)
		}
	}
	return BucketBound(numBuckets - 1)
}

// Reset zeroes the histogram. Not synchronized with recorders; callers
// quiesce the pipeline first (used between benchmark phases).
func (h *Histogram) Reset() {
	for i := range h.buckets {
		atomic.StoreUint64(&h.buckets[i], 0)
	}
	atomic.StoreUint64(&h.count, 0)
	atomic.StoreUint64(&h.sum, 0)
	atomic.StoreUint64(&h.max, 0)
}
