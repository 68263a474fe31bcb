package logger

import (
	"context"

	"vestra-be/internal/utils"

	"go.uber.org/zap"
)

type ctxKey int

const requestIDKey ctxKey = iota

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// FromCtx returns the global logger annotated with whatever identity the
// context carries: the request id, and the authenticated user id when
// middleware has resolved one. Reconciliation logs need both to correlate
// a webhook with the redirect and sweep attempts racing it.
func FromCtx(ctx context.Context) *zap.Logger {
	fields := make([]zap.Field, 0, 2)

	if reqID := RequestIDFrom(ctx); reqID != "" {
		fields = append(fields, zap.String("request_id", reqID))
	}
	if userID, ok := utils.GetUserIDFromContext(ctx); ok {
		fields = append(fields, zap.Uint("user_id", userID))
	}

	if len(fields) == 0 {
		return L()
	}
	return L().With(fields...)
}
