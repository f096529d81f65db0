package latency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketFor(t *testing.T) {
	cases := []struct {
		nanos int64
		want  int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 1},
		{4, 2},
		{1023, 9},
		{1024, 10},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, bucketFor(c.nanos), "nanos=%d", c.nanos)
	}
}

func TestHistogramRecord(t *testing.T) {
	var h Histogram
	h.Record(100)
	h.Record(200)
	h.Record(300)

	assert.Equal(t, uint64(3), h.Count())
	assert.Equal(t, uint64(600), h.Sum())
	assert.Equal(t, uint64(300), h.Max())
	assert.Equal(t, 200.0, h.Mean())
}

func TestHistogramNegativeClampsToZero(t *testing.T) {
	var h Histogram
	h.Record(-5)
	assert.Equal(t, uint64(1), h.Count())
	assert.Equal(t, uint64(0), h.Sum())
}

func TestHistogramPercentile(t *testing.T) {
	var h Histogram
	// 90 samples around 1us, 10 around 1ms.
	for i := 0; i < 90; i++ {
		h.Record(1000)
	}
	for i := 0; i < 10; i++ {
		h.Record(1_000_000)
	}

	p50 := h.Percentile(0.5)
	assert.Less(t, p50, uint64(3000), "median must land in the 1us bucket")
	p99 := h.Percentile(0.99)
	assert.GreaterOrEqual(t, p99, uint64(1_000_000), "p99 must land in the 1ms bucket")
}

func TestHistogramPercentileEmpty(t *testing.T) {
	var h Histogram
	assert.Equal(t, uint64(0), h.Percentile(0.99))
}

func TestHistogramConcurrentRecord(t *testing.T) {
	var h Histogram
	const workers = 8
	const perWorker = 10_000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h.Record(int64(i%1000 + 1))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*perWorker), h.Count())
	_, count, _ := h.Snapshot()
	assert.Equal(t, h.Count(), count)
}

func TestRecorderSpan(t *testing.T) {
	r := NewRecorder()
	span := r.Begin()
	span.Mark(Validated)
	span.Mark(RiskChecked)
	span.Mark(Matched)
	span.Mark(BookUpdated)
	span.Mark(Published)
	span.Finish()

	for _, cp := range []Checkpoint{Validated, RiskChecked, Matched, BookUpdated, Published} {
		assert.Equal(t, uint64(1), r.Stage(cp).Count(), cp.String())
	}
	assert.Equal(t, uint64(1), r.Total().Count())
}

func TestRecorderSkippedCheckpoints(t *testing.T) {
	r := NewRecorder()
	// A validation reject never reaches the matcher.
	span := r.Begin()
	span.Mark(Published)
	span.Finish()

	assert.Equal(t, uint64(0), r.Stage(Matched).Count())
	assert.Equal(t, uint64(1), r.Stage(Published).Count())
	assert.Equal(t, uint64(1), r.Total().Count())
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder
	span := r.Begin()
	span.Mark(Matched)
	span.Finish()
	assert.Nil(t, r.Stage(Matched))
	assert.Nil(t, r.Total())
	assert.Equal(t, int64(0), r.Overhead())
}

func TestClockCalibration(t *testing.T) {
	c := NewClock()
	require.GreaterOrEqual(t, c.Overhead(), int64(0))

	a := c.Now()
	b := c.Now()
	assert.GreaterOrEqual(t, b, a, "clock must be monotonic")
}

func TestBucketBound(t *testing.T) {
	assert.Equal(t, uint64(1), BucketBound(0))
	assert.Equal(t, uint64(3), BucketBound(1))
	assert.Equal(t, uint64(1<<63-1), BucketBound(numBuckets-1))
}
