package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldSessionID is the standardized structured logging key for recording session identifiers.
	FieldSessionID = "session_id"
	// FieldCorrelationID is the standardized structured logging key for per-run correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies warnings and notable events.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the decision being logged (e.g. stage_cache).
	FieldDecisionType = "decision_type"
	// FieldDecisionResult is the outcome of a logged decision.
	FieldDecisionResult = "decision_result"
	// FieldDecisionReason explains a logged decision.
	FieldDecisionReason = "decision_reason"
)

type contextKey string

const (
	stageKey         contextKey = "stage"
	sessionKey       contextKey = "session_id"
	correlationIDKey contextKey = "correlation_id"
)

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// WithSession annotates context with the recording session identifier.
func WithSession(ctx context.Context, session string) context.Context {
	if session == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, session)
}

// WithCorrelationID annotates context with a per-run correlation identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation identifier carried by ctx, if any.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if session, ok := ctx.Value(sessionKey).(string); ok && session != "" {
		fields = append(fields, slog.String(FieldSessionID, session))
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
