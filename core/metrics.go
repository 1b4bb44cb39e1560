package core

import "time"

// MetricsSnapshot is a read-only, point-in-time view of the process-wide
// aggregator. SentimentWindow holds at most the configured capacity of
// scores, oldest first.
type MetricsSnapshot struct {
	TotalRequests        int64         `json:"total_requests"`
	TotalEstimatedTokens int64         `json:"total_estimated_tokens"`
	ErrorCount           int64         `json:"error_count"`
	SentimentWindow      []float64     `json:"sentiment_window"`
	AverageSentiment     float64       `json:"average_sentiment"`
	AverageLatency       time.Duration `json:"average_latency_ns"`
	CapturedAt           time.Time     `json:"captured_at"`
}
