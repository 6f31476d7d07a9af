package logger

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

const healthPath = "/health"

// Logger журнал запросов шлюза
type Logger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Logger {
	return &Logger{
		log: log.With(slog.String("component", "access_log")),
	}
}

// Middleware пишет строку на каждый запрос. Проверки /health клиенты шлют
// каждые несколько секунд, они идут на уровне Debug.
func (l *Logger) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		started := time.Now()
		u := ctx.URL()

		next(ctx)

		status := ctx.Status()
		attrs := []slog.Attr{
			slog.String("method", ctx.Method()),
			slog.String("path", u.Path),
			slog.Int("status", status),
			slog.Duration("took", time.Since(started)),
			slog.String("request_id", ctx.Header("X-Request-Id")),
		}
		if u.RawQuery != "" {
			attrs = append(attrs, slog.String("query", u.RawQuery))
		}

		l.log.LogAttrs(ctx.Context(), levelFor(u.Path, status), "request", attrs...)
	}
}

func levelFor(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case path == healthPath:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
