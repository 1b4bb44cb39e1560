// Package metrics provides the process-wide metrics aggregator: request and
// token counters, error accounting, a bounded FIFO sentiment window and an
// append-only request log. The aggregator is an explicitly constructed,
// dependency-injected instance, never a package-level singleton.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/convopipe/core"
)

// DefaultSentimentWindow is the window capacity used when none is configured.
const DefaultSentimentWindow = 100

// Aggregator accumulates counters and a rolling sentiment window. All
// methods are safe for concurrent callers: counters use atomics, the window
// takes a dedicated lock.
type Aggregator struct {
	totalRequests        atomic.Int64
	totalEstimatedTokens atomic.Int64
	errorCount           atomic.Int64

	mu       sync.Mutex
	window   []float64
	capacity int

	requestLog *RequestLog
}

// NewAggregator creates an aggregator with the given sentiment window
// capacity. Capacity <= 0 falls back to DefaultSentimentWindow.
func NewAggregator(windowCapacity int) *Aggregator {
	if windowCapacity <= 0 {
		windowCapacity = DefaultSentimentWindow
	}
	return &Aggregator{
		window:     make([]float64, 0, windowCapacity),
		capacity:   windowCapacity,
		requestLog: NewRequestLog(0),
	}
}

// RecordRequest counts an accepted request and its estimated token usage.
func (a *Aggregator) RecordRequest(estimatedTokens int) {
	a.totalRequests.Add(1)
	a.totalEstimatedTokens.Add(int64(estimatedTokens))
}

// RecordError counts a downstream failure.
func (a *Aggregator) RecordError() { a.errorCount.Add(1) }

// RecordSentiment appends a score to the bounded window, evicting the
// oldest entry once capacity is exceeded (FIFO).
func (a *Aggregator) RecordSentiment(score float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.window) == a.capacity {
		copy(a.window, a.window[1:])
		a.window = a.window[:a.capacity-1]
	}
	a.window = append(a.window, score)
}

// RequestLog exposes the append-only per-request log.
func (a *Aggregator) RequestLog() *RequestLog { return a.requestLog }

// Snapshot returns a read-only view of all counters and the window.
func (a *Aggregator) Snapshot() core.MetricsSnapshot {
	a.mu.Lock()
	window := make([]float64, len(a.window))
	copy(window, a.window)
	a.mu.Unlock()

	var avg float64
	if len(window) > 0 {
		var sum float64
		for _, s := range window {
			sum += s
		}
		avg = sum / float64(len(window))
	}

	return core.MetricsSnapshot{
		TotalRequests:        a.totalRequests.Load(),
		TotalEstimatedTokens: a.totalEstimatedTokens.Load(),
		ErrorCount:           a.errorCount.Load(),
		SentimentWindow:      window,
		AverageSentiment:     avg,
		AverageLatency:       a.requestLog.AverageLatency(),
		CapturedAt:           time.Now().UTC(),
	}
}
