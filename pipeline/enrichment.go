package pipeline

import (
	"time"

	"github.com/hupe1980/convopipe/core"
)

// EnrichmentStage copies externally supplied caller context (identifiers,
// channel hints) into the per-request metadata bag so downstream resolution
// and tools can read it. It never blocks and never mutates session state;
// stage-owned keys already present in the bag are not overwritten.
type EnrichmentStage struct{}

// NewEnrichmentStage builds the enrichment stage.
func NewEnrichmentStage() *EnrichmentStage { return &EnrichmentStage{} }

// Name identifies the stage.
func (s *EnrichmentStage) Name() string { return "enrichment" }

// Handle merges caller metadata into the bag and stamps the enrichment time.
func (s *EnrichmentStage) Handle(pc *core.PipelineContext, next Handler) (*core.Result, error) {
	for k, v := range pc.Caller {
		if _, taken := pc.Metadata[k]; !taken {
			pc.Metadata[k] = v
		}
	}
	pc.SetMetadata("enriched_at", time.Now().UTC())
	return next(pc)
}
