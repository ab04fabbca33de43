// Package perfmon tracks realtime performance of the audio thread so the
// engine can answer GetCPUUsage with a 0..1 load estimate and so tests
// can detect block-deadline overruns.
package perfmon

import (
	"sync/atomic"
	"time"
)

// Metrics accumulates per-block timing statistics, safe for concurrent
// reads from a control thread while the audio thread writes.
type Metrics struct {
	lastProcessNanos int64 // atomic
	maxProcessNanos  int64 // atomic
	totalNanos       int64 // atomic
	blockCount       uint64 // atomic
	overruns         uint64 // atomic

	sampleRate float64
	frameCount uint32
}

// NewMetrics creates a tracker for blocks of frameCount frames at the
// given sample rate; both may be updated later via SetBlockShape as the
// host's block size or sample rate changes.
func NewMetrics(sampleRate float64, frameCount uint32) *Metrics {
	return &Metrics{sampleRate: sampleRate, frameCount: frameCount}
}

// SetBlockShape updates the deadline used to detect overruns.
func (m *Metrics) SetBlockShape(sampleRate float64, frameCount uint32) {
	m.sampleRate = sampleRate
	m.frameCount = frameCount
}

// Begin returns a start timestamp; pass it to End once the block has
// been fully processed.
func (m *Metrics) Begin() time.Time {
	return time.Now()
}

// End records the duration of a block that started at start.
func (m *Metrics) End(start time.Time) {
	elapsed := time.Since(start).Nanoseconds()

	atomic.StoreInt64(&m.lastProcessNanos, elapsed)
	atomic.AddInt64(&m.totalNanos, elapsed)
	atomic.AddUint64(&m.blockCount, 1)

	for {
		max := atomic.LoadInt64(&m.maxProcessNanos)
		if elapsed <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&m.maxProcessNanos, max, elapsed) {
			break
		}
	}

	if deadline := m.deadlineNanos(); deadline > 0 && elapsed > deadline {
		atomic.AddUint64(&m.overruns, 1)
	}
}

func (m *Metrics) deadlineNanos() int64 {
	if m.sampleRate <= 0 || m.frameCount == 0 {
		return 0
	}
	return int64(float64(m.frameCount) / m.sampleRate * float64(time.Second))
}

// CPUUsage returns a 0..1 estimate of realtime load: the last block's
// processing time divided by the block's real-time deadline, clamped to
// [0, 1].
func (m *Metrics) CPUUsage() float64 {
	deadline := m.deadlineNanos()
	if deadline <= 0 {
		return 0
	}
	last := atomic.LoadInt64(&m.lastProcessNanos)
	usage := float64(last) / float64(deadline)
	if usage < 0 {
		return 0
	}
	if usage > 1 {
		return 1
	}
	return usage
}

// Overruns returns the number of blocks that exceeded their real-time
// deadline since the last Reset.
func (m *Metrics) Overruns() uint64 {
	return atomic.LoadUint64(&m.overruns)
}

// Reset clears all accumulated statistics.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.lastProcessNanos, 0)
	atomic.StoreInt64(&m.maxProcessNanos, 0)
	atomic.StoreInt64(&m.totalNanos, 0)
	atomic.StoreUint64(&m.blockCount, 0)
	atomic.StoreUint64(&m.overruns, 0)
}
