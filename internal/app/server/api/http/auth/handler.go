package auth

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"loanbook/internal/domain/session"
	"loanbook/internal/domain/user"
)

type Handler struct {
	service    user.Servicer
	session    session.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service user.Servicer, session session.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		session:    session,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.signupOp(), h.signup)
	huma.Register(api, h.tokenOp(), h.token)
}

func (h *Handler) signup(ctx context.Context, input *signupInput) (*signupOutput, error) {
	userID, err := h.service.Register(ctx, input.Body.Login, input.Body.Password)
	switch {
	case errors.Is(err, user.ErrInvalidInput):
		return nil, huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, user.ErrLoginTaken):
		return nil, huma.Error409Conflict("login already taken")
	case err != nil:
		h.log.Error("signup failed", "error", err)
		return nil, huma.Error500InternalServerError("signup failed")
	}

	return &signupOutput{
		Body: SignupResponse{UserID: userID, Login: input.Body.Login},
	}, nil
}

func (h *Handler) token(ctx context.Context, input *tokenInput) (*tokenOutput, error) {
	u, err := h.service.Authenticate(ctx, input.Body.Login, input.Body.Password)
	switch {
	case errors.Is(err, user.ErrInvalidAuth):
		return nil, huma.Error400BadRequest("invalid login credentials")
	case err != nil:
		h.log.Error("authenticate failed", "error", err)
		return nil, huma.Error500InternalServerError("authentication failed")
	}

	token, err := h.session.Create(ctx, u.ID)
	if err != nil {
		h.log.Error("create session failed", "user_id", u.ID, "error", err)
		return nil, huma.Error500InternalServerError("create session failed")
	}

	return &tokenOutput{
		Body: TokenResponse{
			AccessToken: token.Value,
			TokenType:   "bearer",
			UserID:      u.ID,
			ExpiresAt:   token.ExpiresAt,
		},
	}, nil
}
