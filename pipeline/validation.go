package pipeline

import (
	"strings"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/logging"
)

// DefaultMaxContentLength bounds inbound content when none is configured.
const DefaultMaxContentLength = 5000

// DefaultDenyList blocks the patterns the validation stage screens for by
// default: script injection, SQL mutation and path traversal attempts.
func DefaultDenyList() []string {
	return []string{"<script>", "DROP TABLE", "DELETE FROM", "../../"}
}

// MetadataTruncated is the request-metadata key set when content was cut to
// the maximum length.
const MetadataTruncated = "truncated"

// ValidationStage screens inbound content. The deny-check runs first: any
// case-folded substring hit short-circuits with a rejection, leaving the
// session untouched apart from the logging stage's own bookkeeping.
// Over-length content is then truncated (not rejected) to exactly the
// configured number of characters, flagged in request metadata, and the
// request continues. The only stage allowed to short-circuit.
type ValidationStage struct {
	deny    []string // original casing, for violation reporting
	denyLow []string // case-folded, for matching
	maxLen  int
	logger  logging.Logger
}

// NewValidationStage builds a validation stage with the given deny
// substrings and maximum content length. maxLen <= 0 uses
// DefaultMaxContentLength.
func NewValidationStage(denyList []string, maxLen int, logger logging.Logger) *ValidationStage {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLength
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	denyLow := make([]string, len(denyList))
	for i, d := range denyList {
		denyLow[i] = strings.ToLower(d)
	}
	return &ValidationStage{deny: denyList, denyLow: denyLow, maxLen: maxLen, logger: logger}
}

// Name identifies the stage.
func (s *ValidationStage) Name() string { return "validation" }

// Handle runs the deny-check then the length check; both run on every
// request and are independent.
func (s *ValidationStage) Handle(pc *core.PipelineContext, next Handler) (*core.Result, error) {
	content := pc.Inbound.Content
	folded := strings.ToLower(content)

	for i, pattern := range s.denyLow {
		if strings.Contains(folded, pattern) {
			s.logger.Warn("validation.blocked", "request_id", pc.RequestID, "pattern", s.deny[i])
			return core.Rejection(s.deny[i]), nil
		}
	}

	// Truncation counts runes: the limit is characters, and byte slicing
	// could split a UTF-8 sequence.
	if runes := []rune(content); len(runes) > s.maxLen {
		pc.Inbound.Content = string(runes[:s.maxLen])
		pc.SetMetadata(MetadataTruncated, true)
		s.logger.Warn("validation.truncated", "request_id", pc.RequestID, "original_length", len(runes), "max_length", s.maxLen)
	}

	pc.SetMetadata("validated", true)
	return next(pc)
}
