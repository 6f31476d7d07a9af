package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"loanbook/internal/domain/session"
)

type Auth struct {
	session session.Servicer
	apiKey  string
	log     *slog.Logger
}

// New apiKey пустой: заголовок apikey не проверяется
func New(session session.Servicer, apiKey string, log *slog.Logger) *Auth {
	return &Auth{
		session: session,
		apiKey:  apiKey,
		log:     log.With(slog.String("component", "auth_middleware")),
	}
}

type contextKey string

const UserIDKey contextKey = "userID"

// APIKey проверяет заголовок apikey
func (a *Auth) APIKey() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if a.apiKey != "" && subtle.ConstantTimeCompare([]byte(ctx.Header("apikey")), []byte(a.apiKey)) != 1 {
			a.log.Debug("wrong apikey", "path", ctx.URL().Path)
			a.unauthorized(ctx, "invalid api key")
			return
		}
		next(ctx)
	}
}

// Middleware проверяет Bearer токен и кладет id пользователя в контекст
func (a *Auth) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		token, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
		if !ok || token == "" {
			a.log.Debug("missing bearer token", "path", ctx.URL().Path)
			a.unauthorized(ctx, "missing bearer token")
			return
		}

		userID, err := a.session.Validate(ctx.Context(), token)
		if err != nil {
			a.log.Debug("validate error", "error", err)
			a.unauthorized(ctx, "invalid or expired token")
			return
		}

		newCtx := context.WithValue(ctx.Context(), UserIDKey, userID)
		next(huma.WithContext(ctx, newCtx))
	}
}

func (a *Auth) unauthorized(ctx huma.Context, msg string) {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetStatus(http.StatusUnauthorized)
	if err := json.NewEncoder(ctx.BodyWriter()).Encode(map[string]string{
		"message": msg,
	}); err != nil {
		a.log.Error("json encode", "error", err)
	}
}

func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
