package http

import (
	"context"
	"log/slog"
)

// httpLogger tags lines with the request id and, once authenticated, the calling user.
func httpLogger(ctx context.Context) *slog.Logger {
	meta := metaFromContext(ctx)
	logger := slog.Default().With(
		"module", "http",
		"layer", "adapter",
		"request_id", meta.id,
	)
	if meta.userID != "" {
		logger = logger.With("user_id", meta.userID)
	}
	return logger
}

// logOperationError records a rejected or failed use-case. Client errors log at warn.
func logOperationError(ctx context.Context, operation string, statusCode int, code string, err error) {
	level := slog.LevelWarn
	if statusCode >= 500 {
		level = slog.LevelError
	}
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	httpLogger(ctx).Log(ctx, level, "request rejected", fields...)
}
