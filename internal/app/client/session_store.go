package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"

	"loanbook/internal/domain/sync"
)

// SessionStore хранит сессию пользователя в файле токена
type SessionStore struct {
	path string

	mu      gosync.RWMutex
	cached  sync.Session
	hasLast bool
}

var _ sync.SessionSource = (*SessionStore)(nil)

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Path путь к файлу токена
func (s *SessionStore) Path() string {
	return s.path
}

// Session возвращает действующую сессию или sync.ErrNotAuthenticated
func (s *SessionStore) Session(_ context.Context) (sync.Session, error) {
	s.mu.RLock()
	cached, ok := s.cached, s.hasLast
	s.mu.RUnlock()
	if ok && cached.Valid() {
		return cached, nil
	}

	session, err := s.Load()
	if err != nil {
		return sync.Session{}, err
	}
	if !session.Valid() {
		return sync.Session{}, fmt.Errorf("%w: срок действия токена истек. Выполните вход: loanbook auth login", sync.ErrNotAuthenticated)
	}
	return session, nil
}

// Load читает сессию с диска
func (s *SessionStore) Load() (sync.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sync.Session{}, fmt.Errorf("%w: токен не найден. Выполните вход: loanbook auth login", sync.ErrNotAuthenticated)
		}
		return sync.Session{}, fmt.Errorf("ошибка чтения токена: %w", err)
	}

	var session sync.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return sync.Session{}, fmt.Errorf("ошибка разбора токена: %w", err)
	}

	s.mu.Lock()
	s.cached, s.hasLast = session, true
	s.mu.Unlock()
	return session, nil
}

// Save сохраняет сессию с правами 0600
func (s *SessionStore) Save(session sync.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации токена: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("ошибка создания директории: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("ошибка сохранения токена: %w", err)
	}

	s.mu.Lock()
	s.cached, s.hasLast = session, true
	s.mu.Unlock()
	return nil
}

// Clear удаляет файл токена
func (s *SessionStore) Clear() error {
	s.Forget()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления токена: %w", err)
	}
	return nil
}

// Forget сбрасывает закэшированную сессию, файл остается
func (s *SessionStore) Forget() {
	s.mu.Lock()
	s.cached, s.hasLast = sync.Session{}, false
	s.mu.Unlock()
}
