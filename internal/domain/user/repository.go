package user

import (
	"context"
)

type Repository interface {
	// Create returns ErrLoginTaken when the login already exists
	Create(ctx context.Context, login, passwordHash string) (int64, error)
	FindByLogin(ctx context.Context, login string) (User, error)
}
