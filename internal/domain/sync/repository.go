package sync

import "context"

// Queue очередь локальных изменений, ожидающих подтверждения сервером
type Queue interface {
	Enqueue(ctx context.Context, table Table, recordID string, op Operation, payload []byte) (int64, error)
	ListAll(ctx context.Context) ([]PendingChange, error)
	ListByTable(ctx context.Context, table Table) ([]PendingChange, error)
	MarkRetry(ctx context.Context, id int64, errMsg string) error
	Remove(ctx context.Context, id int64) error
	RemoveByRecord(ctx context.Context, table Table, recordID string) error
	RemoveAll(ctx context.Context) error
	ListDeadLettered(ctx context.Context, maxRetries int) ([]PendingChange, error)
	Count(ctx context.Context) (int, error)
}

// RemoteStore удаленное хранилище, источник истины
type RemoteStore interface {
	SelectAll(ctx context.Context, s Session, table Table) ([]Record, error)
	SelectEq(ctx context.Context, s Session, table Table, column, value string) ([]Record, error)
	Insert(ctx context.Context, s Session, table Table, rec Record) error
	Update(ctx context.Context, s Session, table Table, patch Record, column, value string) error
	Delete(ctx context.Context, s Session, table Table, column, value string) error
}

// LocalStore локальное хранилище. Движку синхронизации нужна только сверка.
type LocalStore interface {
	// Reconcile в одной транзакции вставляет/обновляет пришедшие записи
	// и удаляет локальные, которых нет в наборе. Возвращает число записанных строк.
	Reconcile(ctx context.Context, table Table, records []Record) (int, error)
}

// Scheduler фоновый планировщик работ
type Scheduler interface {
	SchedulePeriodic(name string, req PeriodicWork, job Job) error
	ScheduleImmediate(name string, req ImmediateWork, job Job) error
	Cancel(name string)
}

// Reachability признак доступности сети
type Reachability interface {
	Online() bool
	Subscribe(ctx context.Context) <-chan bool
}

// DeadLetterSink получает записи, снятые с очереди без подтверждения
type DeadLetterSink interface {
	DeadLettered(ctx context.Context, change PendingChange, cause error)
}
