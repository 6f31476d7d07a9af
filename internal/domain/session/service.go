package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/exp/slog"
)

const DefaultTTL = 24 * time.Hour

// Token issued access token. Only its SHA-256 hash is stored.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Servicer interface {
	Create(ctx context.Context, userID int64) (Token, error)
	Validate(ctx context.Context, token string) (int64, error)
}

type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
	log  *slog.Logger
}

func NewService(repo Repository, ttl time.Duration, log *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
		log:  log.With(slog.String("component", "session_service")),
	}
}

func (s *Service) Create(ctx context.Context, userID int64) (Token, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return Token{}, fmt.Errorf("generate token: %w", err)
	}

	token := Token{
		Value:     base64.URLEncoding.EncodeToString(tokenBytes),
		ExpiresAt: s.now().Add(s.ttl).UTC().Truncate(time.Second),
	}
	if err := s.repo.Create(ctx, userID, hashToken(token.Value), token.ExpiresAt); err != nil {
		return Token{}, fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

func (s *Service) Validate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidSession
	}
	return s.repo.Validate(ctx, hashToken(token))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
