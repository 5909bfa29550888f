package middleware

import (
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/go-todo-service/internal/pkg/log"
)

// Logging кладёт request-scoped логгер (с request_id) в контекст
// и пишет одну запись "http" на каждый запрос.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := r.Header.Get(HeaderRequestID); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}

			// holder позволяет внутренним мидлварам (Authorize) дообогатить
			// логгер, и итоговая запись "http" получит их атрибуты.
			holder := &loggerHolder{l: reqLogger}
			r = r.WithContext(logctx.Into(withHolder(r.Context(), holder), reqLogger))

			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.code()),
				slog.Duration("dur", dur),
				slog.Int("bytes", sw.count),
			}

			holder.l.LogAttrs(r.Context(), slog.LevelInfo, "http", attrs...)
		})
	}
}
