package middleware

import (
	"context"
	"log/slog"

	logctx "github.com/pribylovaa/go-todo-service/internal/pkg/log"
)

type holderKey struct{}

// loggerHolder — изменяемая ячейка с логгером запроса, общая для
// Logging и вложенных мидлваров.
type loggerHolder struct {
	l *slog.Logger
}

func withHolder(ctx context.Context, h *loggerHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

// enrichLogger добавляет атрибуты к логгеру контекста и, если запрос
// обёрнут Logging, к логгеру итоговой записи "http".
func enrichLogger(ctx context.Context, args ...any) context.Context {
	ctx = logctx.With(ctx, args...)
	if h, ok := ctx.Value(holderKey{}).(*loggerHolder); ok {
		h.l = logctx.From(ctx)
	}

	return ctx
}
