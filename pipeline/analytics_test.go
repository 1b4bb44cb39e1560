package pipeline

import (
	"errors"
	"testing"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/internal/testutil"
	"github.com/hupe1980/convopipe/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"hello", 1},                       // round(1 × 1.3)
		{"hello world", 3},                 // round(2 × 1.3) = round(2.6)
		{"one two three", 4},               // round(3.9)
		{"one two three four", 5},          // round(5.2)
		{"  spaced   out   words  ", 4},    // fields, not bytes
		{"one two three four five six", 8}, // round(7.8)
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.content), "content %q", tt.content)
	}
}

func TestSentimentScore(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"neutral", "where is my order", 0},
		{"positive", "this is great, thank you", 1},
		{"negative", "terrible, awful service", -1},
		{"mixed", "great product but terrible shipping", 0},
		{"mixed leaning positive", "happy and great but bad", 1.0 / 3.0},
		{"case folded", "GREAT service", 1},
		{"substring containment", "thankful customer", 1}, // "thank" hits inside "thankful"
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SentimentScore(tt.content), 1e-9)
		})
	}
}

func TestAnalyticsStage_RecordsRequest(t *testing.T) {
	agg := metrics.NewAggregator(10)
	stage := NewAnalyticsStage(agg)

	store, sess := testutil.SeededStore("s1")
	pc := testutil.Context(store, sess, "thank you, great service")

	res, err := stage.Handle(pc, func(pc *core.PipelineContext) (*core.Result, error) {
		return &core.Result{Reply: "ok"}, nil
	})
	require.NoError(t, err)

	snap := agg.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(5), snap.TotalEstimatedTokens) // round(4 × 1.3)
	assert.Zero(t, snap.ErrorCount)
	require.Len(t, snap.SentimentWindow, 1)
	assert.Equal(t, 1.0, snap.SentimentWindow[0])

	assert.Equal(t, 1.0, res.Metadata["sentiment_score"])
	assert.Equal(t, 5, res.Metadata["estimated_tokens"])
	assert.Contains(t, res.Metadata, "downstream_elapsed")
}

func TestAnalyticsStage_DownstreamErrorCounts(t *testing.T) {
	agg := metrics.NewAggregator(10)
	stage := NewAnalyticsStage(agg)

	store, sess := testutil.SeededStore("s1")
	pc := testutil.Context(store, sess, "hello")

	_, err := stage.Handle(pc, func(pc *core.PipelineContext) (*core.Result, error) {
		return nil, errors.New("downstream broke")
	})
	require.Error(t, err)

	snap := agg.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests, "the request was accepted before the failure")
	assert.Equal(t, int64(1), snap.ErrorCount)
}

func TestAnalyticsStage_DegradedCountsAsError(t *testing.T) {
	agg := metrics.NewAggregator(10)
	stage := NewAnalyticsStage(agg)

	store, sess := testutil.SeededStore("s1")
	pc := testutil.Context(store, sess, "hello")

	res, err := stage.Handle(pc, func(pc *core.PipelineContext) (*core.Result, error) {
		return &core.Result{Reply: "partial", Degraded: true, DegradedReason: "check_ticket_status"}, nil
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, int64(1), agg.Snapshot().ErrorCount)
}
