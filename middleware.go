package caseflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/caseflow-dev/caseflow/store"
)

// StageHandler executes one stage against the state.
type StageHandler func(ctx context.Context, st Stage, state *store.State) ([]LogEntry, error)

// StageMiddleware wraps a StageHandler.
type StageMiddleware func(next StageHandler) StageHandler

// LoggingMiddleware logs stage entry and exit with timing.
func LoggingMiddleware(logger Logger) StageMiddleware {
	return func(next StageHandler) StageHandler {
		return func(ctx context.Context, st Stage, state *store.State) ([]LogEntry, error) {
			logger.Info("stage %s starting (%s, %d abilities)", st.Name, st.Mode, len(st.Abilities))
			start := time.Now()
			entries, err := next(ctx, st, state)
			if err != nil {
				logger.Error("stage %s failed after %s: %v", st.Name, time.Since(start), err)
				return entries, err
			}
			logger.Info("stage %s finished in %s", st.Name, time.Since(start))
			return entries, nil
		}
	}
}

// TracingMiddleware opens one span per stage.
func TracingMiddleware(tracer trace.Tracer) StageMiddleware {
	if tracer == nil {
		tracer = otel.Tracer("caseflow")
	}
	return func(next StageHandler) StageHandler {
		return func(ctx context.Context, st Stage, state *store.State) ([]LogEntry, error) {
			ctx, span := tracer.Start(ctx, "stage."+st.Name,
				trace.WithAttributes(
					attribute.String("stage.name", st.Name),
					attribute.String("stage.mode", string(st.Mode)),
					attribute.Int("stage.abilities", len(st.Abilities)),
				))
			defer span.End()

			entries, err := next(ctx, st, state)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return entries, err
		}
	}
}

// TimeLimitMiddleware bounds one stage's wall time. The limit applies on top
// of the per-call provider timeouts the dispatcher already enforces.
func TimeLimitMiddleware(limit time.Duration) StageMiddleware {
	return func(next StageHandler) StageHandler {
		return func(ctx context.Context, st Stage, state *store.State) ([]LogEntry, error) {
			ctx, cancel := context.WithTimeout(ctx, limit)
			defer cancel()
			return next(ctx, st, state)
		}
	}
}
