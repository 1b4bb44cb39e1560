package pipeline

import (
	"math"
	"strings"
	"time"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/metrics"
)

// tokenMultiplier approximates tokens per whitespace-separated word.
const tokenMultiplier = 1.3

// Sentiment lexicons. Matching is case-folded substring containment; each
// lexicon entry counts at most once per message.
var (
	positiveWords = []string{"happy", "great", "excellent", "good", "love", "thank"}
	negativeWords = []string{"bad", "terrible", "hate", "poor", "awful", "disappointed"}
)

// AnalyticsStage feeds the process-wide aggregator. Its pre-logic counts
// the accepted request, estimates token usage and scores sentiment; its
// post-logic measures elapsed time attributable to downstream work and
// switches to the error path when downstream failed. It always runs after
// validation passes.
type AnalyticsStage struct {
	agg *metrics.Aggregator
}

// NewAnalyticsStage builds the analytics stage over the injected aggregator.
func NewAnalyticsStage(agg *metrics.Aggregator) *AnalyticsStage {
	return &AnalyticsStage{agg: agg}
}

// Name identifies the stage.
func (s *AnalyticsStage) Name() string { return "analytics" }

// Handle records request metrics before proceeding and error/latency
// accounting afterwards.
func (s *AnalyticsStage) Handle(pc *core.PipelineContext, next Handler) (*core.Result, error) {
	content := pc.Inbound.Content

	tokens := EstimateTokens(content)
	s.agg.RecordRequest(tokens)

	score := SentimentScore(content)
	s.agg.RecordSentiment(score)

	pc.SetMetadata("estimated_tokens", tokens)
	pc.SetMetadata("sentiment_score", score)

	start := time.Now()
	res, err := next(pc)
	downstream := time.Since(start)

	if err != nil || (res != nil && res.Degraded) {
		s.agg.RecordError()
	}
	if res != nil {
		res.Annotate("sentiment_score", score)
		res.Annotate("estimated_tokens", tokens)
		res.Annotate("downstream_elapsed", downstream)
	}
	return res, err
}

// EstimateTokens approximates token usage as round(wordCount × 1.3).
func EstimateTokens(content string) int {
	return int(math.Round(float64(len(strings.Fields(content))) * tokenMultiplier))
}

// SentimentScore computes a deterministic lexicon score in [-1, 1]:
// (positiveHits − negativeHits) / max(1, positiveHits+negativeHits).
// A message with no lexicon hits scores 0.
func SentimentScore(content string) float64 {
	folded := strings.ToLower(content)
	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(folded, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(folded, w) {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}
