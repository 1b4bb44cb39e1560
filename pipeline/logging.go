package pipeline

import (
	"time"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/logging"
	"github.com/hupe1980/convopipe/metrics"
)

// LoggingStage is the outermost stage. Its pre-logic records the request id
// and start time; its post-logic records elapsed time and outcome into the
// append-only request log. It never mutates session state.
type LoggingStage struct {
	logger     logging.Logger
	requestLog *metrics.RequestLog
}

// NewLoggingStage builds the logging stage writing to requestLog.
func NewLoggingStage(logger logging.Logger, requestLog *metrics.RequestLog) *LoggingStage {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingStage{logger: logger, requestLog: requestLog}
}

// Name identifies the stage.
func (s *LoggingStage) Name() string { return "logging" }

// Handle logs the request on the way in and its outcome on the way out.
// Failures still reach the request log: the error is returned unchanged
// after the record is appended.
func (s *LoggingStage) Handle(pc *core.PipelineContext, next Handler) (*core.Result, error) {
	start := time.Now()
	log := logging.WithRequestScope(s.logger, pc.Session.ID, pc.RequestID)
	log.Info("request.start", "content_length", len(pc.Inbound.Content))

	res, err := next(pc)

	elapsed := time.Since(start)
	rec := metrics.RequestRecord{
		RequestID: pc.RequestID,
		SessionID: pc.Session.ID,
		StartedAt: start.UTC(),
		Elapsed:   elapsed,
		Outcome:   outcomeOf(res, err),
	}
	if s.requestLog != nil {
		s.requestLog.Append(rec)
	}

	if err != nil {
		log.Error("request.failed", "elapsed_ms", elapsed.Milliseconds(), "error", err.Error())
		return res, err
	}
	log.Info("request.completed", "elapsed_ms", elapsed.Milliseconds(), "outcome", string(rec.Outcome))
	return res, nil
}

func outcomeOf(res *core.Result, err error) metrics.Outcome {
	switch {
	case err != nil:
		return metrics.OutcomeError
	case res != nil && res.Rejected:
		return metrics.OutcomeRejected
	case res != nil && res.Degraded:
		return metrics.OutcomeDegraded
	default:
		return metrics.OutcomeSuccess
	}
}
