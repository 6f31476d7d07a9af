package auth

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) signupOp() huma.Operation {
	return huma.Operation{
		OperationID: "auth-signup",
		Method:      http.MethodPost,
		Path:        "/auth/v1/signup",
		Summary:     "Регистрация пользователя",
		Tags:        []string{"auth"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) tokenOp() huma.Operation {
	return huma.Operation{
		OperationID: "auth-token",
		Method:      http.MethodPost,
		Path:        "/auth/v1/token",
		Summary:     "Получение токена доступа",
		Tags:        []string{"auth"},
		Middlewares: h.middleware,
	}
}
