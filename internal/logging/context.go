package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldOperationID is the standardized structured logging key for retry operation identifiers.
	FieldOperationID = "operation_id"
	// FieldOpType is the standardized structured logging key for operation type tags.
	FieldOpType = "op_type"
	// FieldPriority is the standardized structured logging key for operation priorities.
	FieldPriority = "priority"
	// FieldAttempt is the standardized structured logging key for dispatch attempt counters.
	FieldAttempt = "attempt"
	// FieldEventType is the standardized structured logging key for machine-readable event tags.
	FieldEventType = "event_type"
	// FieldErrorHint carries operator guidance alongside error logs.
	FieldErrorHint = "error_hint"
)

type contextKey string

const (
	operationIDKey contextKey = "operation_id"
	opTypeKey      contextKey = "op_type"
)

// WithOperation attaches operation metadata to the context for downstream logs.
func WithOperation(ctx context.Context, id, opType string) context.Context {
	ctx = context.WithValue(ctx, operationIDKey, id)
	return context.WithValue(ctx, opTypeKey, opType)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := ctx.Value(operationIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldOperationID, id))
	}
	if opType, ok := ctx.Value(opTypeKey).(string); ok && opType != "" {
		fields = append(fields, slog.String(FieldOpType, opType))
	}
	return fields
}

// WithContext returns a logger enriched with any context-carried fields.
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
