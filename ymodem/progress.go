package ymodem

import (
	"sync"
	"time"
)

// ProgressTracker rate-limits progress callbacks while a file is programmed.
type ProgressTracker struct {
	mu sync.Mutex

	filename   string
	written    int64
	total      int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64

	callback func(string, int64, int64, float64)
	interval time.Duration
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(callback func(string, int64, int64, float64), interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ProgressTracker{
		callback: callback,
		interval: interval,
	}
}

// Start begins tracking a file of the declared size.
func (pt *ProgressTracker) Start(filename string, total int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.filename = filename
	pt.total = total
	pt.written = 0
	pt.startTime = time.Now()
	pt.lastUpdate = pt.startTime
	pt.lastBytes = 0
}

// Update records the number of bytes programmed so far and invokes the callback if
// the interval has elapsed.
func (pt *ProgressTracker) Update(written int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.written = written

	now := time.Now()
	elapsed := now.Sub(pt.lastUpdate)
	if elapsed < pt.interval {
		return
	}

	rate := float64(written-pt.lastBytes) / elapsed.Seconds()
	if pt.callback != nil {
		pt.callback(pt.filename, written, pt.total, rate)
	}

	pt.lastUpdate = now
	pt.lastBytes = written
}

// Complete issues a final callback and returns the transfer duration.
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	duration := time.Since(pt.startTime)
	if pt.callback != nil {
		pt.callback(pt.filename, pt.written, pt.total, 0)
	}
	return duration
}

// Stats returns the current progress and the average rate since Start.
func (pt *ProgressTracker) Stats() (written, total int64, rate float64, duration time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	written = pt.written
	total = pt.total
	duration = time.Since(pt.startTime)
	if duration > 0 {
		rate = float64(written) / duration.Seconds()
	}
	return
}
