package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
)

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the request logger from the context, enriched with
// the tenant scope when one is bound. Every log line written inside a
// tenant-scoped request carries tenant_id and user_id this way.
func FromContext(ctx context.Context) *zap.Logger {
	l, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok {
		l = GetLogger()
	}
	return withScopeFields(ctx, l)
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromEcho retrieves the request logger from the Echo context, enriched
// with the tenant scope bound to the underlying request.
func FromEcho(c echo.Context) *zap.Logger {
	l, ok := c.Get("logger").(*zap.Logger)
	if !ok {
		l = GetLogger()
	}
	return withScopeFields(c.Request().Context(), l)
}

func withScopeFields(ctx context.Context, l *zap.Logger) *zap.Logger {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return l
	}
	return l.With(
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("user_id", scope.UserID),
	)
}
