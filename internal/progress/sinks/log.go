package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/seumter-tools/registry-archiver/internal/progress"
)

// LogSink emits a structured log line per progress event. It provides the
// operator-visible trail for scheduled runs where no metrics backend exists.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("address", evt.Address),
			zap.String("result", string(evt.Result)),
			zap.Bool("archived", evt.Archived),
			zap.String("artifact", evt.Artifact),
			zap.Int64("bytes", evt.Bytes),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
