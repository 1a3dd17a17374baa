package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/brokenlinks/internal/progress"
)

// LogSink writes progress events as structured logs. Broken resources are
// logged at warn level, lifecycle events at info and the rest at debug.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("session_id", evt.SessionUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Referrer != "" {
			fields = append(fields, zap.String("referrer", evt.Referrer))
		}
		if evt.StatusCode != 0 {
			fields = append(fields, zap.Int("status", evt.StatusCode))
		}
		if evt.StatusClass != "" {
			fields = append(fields, zap.String("status_class", string(evt.StatusClass)))
		}
		if evt.Stage == progress.StagePageVisit {
			fields = append(fields, zap.Int64("visited", evt.Visited), zap.Int64("page_limit", evt.PageLimit))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Log(levelFor(evt.Stage), "progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageBrokenResource:
		return zapcore.WarnLevel
	case progress.StageCrawlStart, progress.StageCrawlDone, progress.StageCrawlCancelled:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
