package app

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/pkg/logger"
)

// RegisterEventLogging logs pipeline outcomes. Step-level events are already
// logged by the pipeline itself.
func RegisterEventLogging(d *domain.EventDispatcher) {
	d.Register(domain.EventPipelineCompleted, logEvent(zapcore.InfoLevel))
	d.Register(domain.EventPipelineFailed, logEvent(zapcore.WarnLevel))
	d.Register(domain.EventRollbackIncomplete, logEvent(zapcore.ErrorLevel))
}

func logEvent(level zapcore.Level) domain.EventHandler {
	return func(_ context.Context, e *domain.Event) error {
		fields := []zap.Field{
			zap.String("event_type", string(e.EventType)),
			zap.String("event_id", e.EventID),
			zap.String("run_id", e.RunID),
			zap.String("pipeline", e.Pipeline),
		}
		if e.Step != "" {
			fields = append(fields, zap.String("step", e.Step))
		}
		if e.Error != "" {
			fields = append(fields, zap.String("error", e.Error))
		}
		if len(e.Payload) > 0 {
			fields = append(fields, zap.ByteString("outcomes", e.Payload))
		}
		logger.L().Log(level, "Pipeline event", fields...)
		return nil
	}
}
