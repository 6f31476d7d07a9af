package session

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidSession = errors.New("invalid session")

type Repository interface {
	Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	// Validate returns ErrInvalidSession for unknown or expired tokens
	Validate(ctx context.Context, tokenHash string) (int64, error)
}
