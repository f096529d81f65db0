package latency

import "time"

// Checkpoint marks a stage boundary in the order pipeline.
type Checkpoint uint8

const (
	Received Checkpoint = iota
	Validated
	RiskChecked
	Matched
	BookUpdated
	Published

	numCheckpoints
)

func (c Checkpoint) String() string {
	switch c {
	case Received:
		return "received"
	case Validated:
		return "validated"
	case RiskChecked:
		return "risk_checked"
	case Matched:
		return "matched"
	case BookUpdated:
		return "book_updated"
	case Published:
		return "published"
	default:
		return "unknown"
	}
}

// stageNames label the histogram for the interval ending at each
// checkpoint (Received has no preceding interval).
var stageNames = [numCheckpoints]string{
	"", "validate", "risk_check", "match", "book_update", "publish",
}

// Clock produces monotonic nanosecond readings relative to a fixed
// base, with the cost of the reading itself calibrated out. Calibration
// happens once at construction, never per sample.
type Clock struct {
	base     time.Time
	overhead int64
}

// NewClock creates a calibrated clock.
func NewClock() *Clock {
	c := &Clock{base: time.Now()}
	c.overhead = c.calibrate()
	return c
}

// calibrate measures the cost of one reading by timing a batch of them.
func (c *Clock) calibrate() int64 {
	const samples = 4096
	start := c.raw()
	for i := 0; i < samples-1; i++ {
		_ = c.raw()
	}
	return (c.raw() - start) / samples
}

func (c *Clock) raw() int64 {
	return time.Since(c.base).Nanoseconds()
}

// Now returns the current monotonic reading.
func (c *Clock) Now() int64 { return c.raw() }

// Overhead reports the calibrated per-reading cost in ns.
func (c *Clock) Overhead() int64 { return c.overhead }

// Recorder aggregates per-stage and end-to-end latency histograms for
// one pipeline. A nil Recorder is a no-op, so the engine can run with
// profiling disabled at zero cost beyond the nil checks.
type Recorder struct {
	clock  *Clock
	stages [numCheckpoints]Histogram // stages[i] = interval ending at checkpoint i
	total  Histogram                 // Received through Published
}

// NewRecorder builds a recorder with its own calibrated clock.
func NewRecorder() *Recorder {
	return &Recorder{clock: NewClock()}
}

// Span tracks one order's progress through the pipeline. It is a value
// type passed on the stack; taking a span performs no allocation.
type Span struct {
	rec   *Recorder
	marks [numCheckpoints]int64
}

// Begin starts a span at the Received checkpoint.
func (r *Recorder) Begin() Span {
	var s Span
	if r == nil {
		return s
	}
	s.rec = r
	s.marks[Received] = r.clock.Now()
	return s
}

// Mark stamps a checkpoint. Marks may be skipped (an order rejected in
// validation never reaches Matched); Finish only records intervals
// whose endpoints were both stamped.
func (s *Span) Mark(c Checkpoint) {
	if s.rec == nil {
		return
	}
	s.marks[c] = s.rec.clock.Now()
}

// Finish records every stamped stage interval and the end-to-end
// duration, each corrected for clock-read overhead.
func (s *Span) Finish() {
	if s.rec == nil {
		return
	}
	overhead := s.rec.clock.overhead
	prev := s.marks[Received]
	last := prev
	stamped := false
	for c := Checkpoint(1); c < numCheckpoints; c++ {
		m := s.marks[c]
		if m == 0 {
			continue
		}
		s.rec.stages[c].Record(m - prev - overhead)
		prev = m
		last = m
		stamped = true
	}
	if stamped {
		s.rec.total.Record(last - s.marks[Received] - overhead)
	}
}

// Stage returns the histogram for the interval ending at c, nil for
// Received or a nil recorder.
func (r *Recorder) Stage(c Checkpoint) *Histogram {
	if r == nil || c == Received || c >= numCheckpoints {
		return nil
	}
	return &r.stages[c]
}

// Total returns the end-to-end histogram.
func (r *Recorder) Total() *Histogram {
	if r == nil {
		return nil
	}
	return &r.total
}

// Overhead reports the calibrated clock-read cost in ns.
func (r *Recorder) Overhead() int64 {
	if r == nil {
		return 0
	}
	return r.clock.overhead
}
