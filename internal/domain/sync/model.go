package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Operation тип изменения, которое нужно воспроизвести на сервере
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// ParseOperation разбирает строковое представление операции
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpInsert, OpUpdate, OpDelete:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// PendingChange запись очереди pending_sync
type PendingChange struct {
	ID         int64           `json:"id"`
	Table      Table           `json:"table_name"`
	RecordID   string          `json:"record_id"`
	Operation  Operation       `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  int64           `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error,omitempty"`
}

// Created время постановки в очередь
func (c PendingChange) Created() time.Time {
	return time.UnixMilli(c.CreatedAt)
}

// Record одна строка таблицы в виде "колонка -> значение"
type Record map[string]any

// ID возвращает первичный ключ записи
func (r Record) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Clone делает поверхностную копию записи
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Outcome итог одного прогона фоновой задачи
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailure:
		return "failure"
	}
	return "unknown"
}

// Job единица фоновой работы, которую запускает планировщик
type Job func(ctx context.Context) Outcome

// Session данные аутентификации, передаются явно в каждый вызов
type Session struct {
	UserID      int64     `json:"user_id"`
	Login       string    `json:"login"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid сессия есть и не истекла
func (s Session) Valid() bool {
	if s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}

// SessionSource отдает текущую сессию
type SessionSource interface {
	Session(ctx context.Context) (Session, error)
}

// SessionFunc адаптер функции к SessionSource
type SessionFunc func(ctx context.Context) (Session, error)

func (f SessionFunc) Session(ctx context.Context) (Session, error) {
	return f(ctx)
}

// StaticSession всегда возвращает одну и ту же сессию
func StaticSession(s Session) SessionSource {
	return SessionFunc(func(context.Context) (Session, error) {
		return s, nil
	})
}

// PeriodicWork параметры периодической работы
type PeriodicWork struct {
	Interval        time.Duration
	Flex            time.Duration
	RequiresNetwork bool
	BackoffBase     time.Duration
}

// ImmediateWork параметры разового немедленного запуска
type ImmediateWork struct {
	RequiresNetwork bool
	Expedited       bool
	BackoffBase     time.Duration
}
