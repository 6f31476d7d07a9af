// Шлюз хранения для клиентов loanbook:
//
//	GET    /health                # Доступность сервиса и базы (публичный)
//	POST   /auth/v1/signup        # Регистрация (apikey)
//	POST   /auth/v1/token         # Выдача токена доступа (apikey)
//	GET    /rest/v1/{table}       # Строки владельца, фильтры ?col=eq.val (apikey + bearer)
//	POST   /rest/v1/{table}       # Вставка строки (apikey + bearer)
//	PATCH  /rest/v1/{table}       # Обновление по фильтру (apikey + bearer)
//	DELETE /rest/v1/{table}       # Удаление по фильтру (apikey + bearer)
package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"loanbook/internal/app/server/api/http/auth"
	healthAPI "loanbook/internal/app/server/api/http/health"
	"loanbook/internal/app/server/api/http/middleware"
	authMW "loanbook/internal/app/server/api/http/middleware/auth"
	"loanbook/internal/app/server/api/http/middleware/logger"
	restAPI "loanbook/internal/app/server/api/http/rest"
	"loanbook/internal/app/server/config"
	"loanbook/internal/domain/rest"
	"loanbook/internal/domain/session"
	"loanbook/internal/domain/user"
	"loanbook/internal/infrastructure/storage/postgres"
)

type Handlers struct {
	Health *healthAPI.Handler
	Auth   *auth.Handler
	Rest   *restAPI.Handler
}

// Services доменные сервисы, из которых собираются обработчики
type Services struct {
	DB       healthAPI.Pinger
	Users    user.Servicer
	Sessions session.Servicer
	Tables   rest.Servicer
}

// New создает *chi.Mux поверх PostgreSQL
func New(storage *postgres.Storage, cfg *config.Config, log *slog.Logger) *chi.Mux {
	return NewMux(services(storage, cfg, log), cfg, log)
}

// NewMux создает *chi.Mux со всеми операциями через huma.Register
func NewMux(svc Services, cfg *config.Config, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()

	hc := huma.DefaultConfig("Loanbook Gateway", "1.0.0")
	hc.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	API := humachi.New(mux, hc)

	h := handlers(svc, cfg, log)
	h.Health.SetupRoutes(API)
	h.Auth.SetupRoutes(API)
	h.Rest.SetupRoutes(API)

	return mux
}

func services(storage *postgres.Storage, cfg *config.Config, log *slog.Logger) Services {
	userRepo := postgres.NewUserRepository(storage, log)
	sessionRepo := postgres.NewSessionRepository(storage, log)
	tableRepo := postgres.NewTableRepository(storage, log)

	return Services{
		DB:       storage.Pool(),
		Users:    user.NewService(userRepo, user.NewCredentialsValidator(), log),
		Sessions: session.NewService(sessionRepo, cfg.Auth.SessionTTL, log),
		Tables:   rest.NewService(tableRepo, log),
	}
}

func handlers(svc Services, cfg *config.Config, log *slog.Logger) *Handlers {
	guard := authMW.New(svc.Sessions, cfg.Server.APIKey, log)
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	healthHandler := healthAPI.NewHandler(svc.DB, log,
		middlewares.Add(loggerMW.Middleware()).GetAllAndClear())

	authHandler := auth.NewHandler(svc.Users, svc.Sessions, log,
		middlewares.Add(loggerMW.Middleware(), guard.APIKey()).GetAllAndClear())

	restHandler := restAPI.NewHandler(svc.Tables, log,
		middlewares.Add(loggerMW.Middleware(), guard.APIKey(), guard.Middleware()).GetAllAndClear())

	return &Handlers{
		Health: healthHandler,
		Auth:   authHandler,
		Rest:   restHandler,
	}
}
