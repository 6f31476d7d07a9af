package sync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotAuthenticated = errors.New("нет активной сессии")
	ErrUnknownTable     = errors.New("unknown table")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrRecordNotFound   = errors.New("record not found")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// RemoteError ошибка обращения к удаленному хранилищу.
// Permanent означает, что повтор запроса не поможет.
type RemoteError struct {
	Status    int
	Message   string
	Permanent bool
	Err       error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("remote store unavailable: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("remote store: status %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("remote store: status %d", e.Status)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsPermanent ошибка не исправится повтором
func IsPermanent(err error) bool {
	if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnknownOperation) {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re) && re.Permanent
}

// IsUnauthorized сервер отверг сессию
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re) && re.Status == http.StatusUnauthorized
}
