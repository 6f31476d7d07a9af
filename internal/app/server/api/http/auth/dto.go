package auth

import (
	"time"

	"loanbook/internal/domain/user"
)

type tokenInput struct {
	Body user.Credentials
}

type tokenOutput struct {
	Body TokenResponse
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type" example:"bearer"`
	UserID      int64     `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type signupInput struct {
	Body user.Credentials
}

type signupOutput struct {
	Body SignupResponse
}

type SignupResponse struct {
	UserID int64  `json:"user_id"`
	Login  string `json:"login"`
}
