package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/progress"
)

// LogSink writes one structured log line per event.
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

// Consume logs each event. Retries log at debug level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("page", evt.Page),
			zap.String("url", evt.URL),
			zap.Int("new", evt.New),
			zap.Int("total", evt.Total),
		}
		if evt.Stage == progress.StageRetry {
			fields = append(fields, zap.String("step", evt.Step), zap.Int("attempt", evt.Attempt), zap.String("note", evt.Note))
			s.logger.Debug("progress event", fields...)
			continue
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
