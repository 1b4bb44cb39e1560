package metrics

import (
	"sync"
	"time"
)

// Outcome classifies how a request finished.
type Outcome string

const (
	// OutcomeSuccess marks an accepted request with a normal reply.
	OutcomeSuccess Outcome = "success"
	// OutcomeRejected marks a validation short-circuit.
	OutcomeRejected Outcome = "rejected"
	// OutcomeDegraded marks a reply produced despite a tool failure.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeError marks an internal pipeline failure.
	OutcomeError Outcome = "error"
)

// RequestRecord is one entry in the append-only request log, written by the
// logging stage's post-logic.
type RequestRecord struct {
	RequestID string        `json:"request_id"`
	SessionID string        `json:"session_id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Outcome   Outcome       `json:"outcome"`
}

// RequestLog is an append-only, optionally bounded log of request records.
// When the bound is reached the oldest records are dropped so the log keeps
// a rolling tail rather than growing without limit.
type RequestLog struct {
	mu      sync.Mutex
	records []RequestRecord
	limit   int
}

// DefaultRequestLogLimit bounds the in-memory log tail.
const DefaultRequestLogLimit = 1024

// NewRequestLog creates a request log keeping at most limit records.
// Limit <= 0 uses DefaultRequestLogLimit.
func NewRequestLog(limit int) *RequestLog {
	if limit <= 0 {
		limit = DefaultRequestLogLimit
	}
	return &RequestLog{limit: limit}
}

// Append records one completed request.
func (l *RequestLog) Append(rec RequestRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == l.limit {
		copy(l.records, l.records[1:])
		l.records = l.records[:l.limit-1]
	}
	l.records = append(l.records, rec)
}

// Records returns a defensive copy of the log tail, oldest first.
func (l *RequestLog) Records() []RequestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]RequestRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of retained records.
func (l *RequestLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// AverageLatency returns the mean elapsed time across retained records.
func (l *RequestLog) AverageLatency() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return 0
	}
	var total time.Duration
	for _, r := range l.records {
		total += r.Elapsed
	}
	return total / time.Duration(len(l.records))
}
