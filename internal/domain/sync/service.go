package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"
)

const (
	// PeriodicWorkName единственное имя периодической работы
	PeriodicWorkName = "loanbook.sync.periodic"
	// ImmediateWorkName имя разового разбора очереди
	ImmediateWorkName = "loanbook.sync.immediate"

	DefaultPeriodicInterval = 15 * time.Minute
	DefaultPeriodicFlex     = 5 * time.Minute
	DefaultBackoffBase      = 30 * time.Second
)

// Config настройки оркестратора
type Config struct {
	PeriodicInterval time.Duration
	PeriodicFlex     time.Duration
	BackoffBase      time.Duration
	// RefreshOnPeriodic после разбора очереди выполнять полную синхронизацию
	RefreshOnPeriodic bool
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		PeriodicInterval:  DefaultPeriodicInterval,
		PeriodicFlex:      DefaultPeriodicFlex,
		BackoffBase:       DefaultBackoffBase,
		RefreshOnPeriodic: true,
	}
}

// Deps зависимости оркестратора
type Deps struct {
	Queue        Queue
	Engine       *Engine
	Worker       *Worker
	Scheduler    Scheduler
	Reachability Reachability
	Sessions     SessionSource
}

// Service единая точка входа для кода предметной области:
// поставить изменение в очередь, обновить все данные, запланировать синхронизацию
type Service struct {
	queue     Queue
	engine    *Engine
	worker    *Worker
	scheduler Scheduler
	reach     Reachability
	sessions  SessionSource
	cfg       Config
	log       *slog.Logger

	// разборы очереди не должны идти параллельно
	drainMu gosync.Mutex
}

func NewService(deps Deps, cfg Config, log *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.PeriodicInterval <= 0 {
		cfg.PeriodicInterval = def.PeriodicInterval
	}
	if cfg.PeriodicFlex <= 0 || cfg.PeriodicFlex > cfg.PeriodicInterval {
		cfg.PeriodicFlex = min(def.PeriodicFlex, cfg.PeriodicInterval)
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}

	return &Service{
		queue:     deps.Queue,
		engine:    deps.Engine,
		worker:    deps.Worker,
		scheduler: deps.Scheduler,
		reach:     deps.Reachability,
		sessions:  deps.Sessions,
		cfg:       cfg,
		log:       log.With(slog.String("component", "sync_service")),
	}
}

// QueueOperation сохраняет изменение в очереди и, если сеть есть, просит
// планировщик немедленно разобрать очередь. Никогда не возвращает ошибку:
// сбой виден только по состоянию очереди и в логах.
func (s *Service) QueueOperation(ctx context.Context, table Table, recordID string, op Operation, payload any) {
	data, err := encodePayload(table, payload)
	if err != nil {
		s.log.Error("Ошибка сериализации изменения",
			"table", table,
			"record_id", recordID,
			"operation", op,
			"error", err,
		)
		return
	}

	id, err := s.queue.Enqueue(ctx, table, recordID, op, data)
	if err != nil {
		s.log.Error("Ошибка записи изменения в очередь",
			"table", table,
			"record_id", recordID,
			"operation", op,
			"error", err,
		)
		return
	}
	s.log.Debug("Изменение поставлено в очередь", "id", id, "table", table, "operation", op)

	if s.reach != nil && s.reach.Online() {
		s.requestDrain()
	}
}

func encodePayload(table Table, payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		return encodeRaw(table, p)
	case []byte:
		return encodeRaw(table, p)
	case Record:
		return json.Marshal(table.ToRemote(p))
	case map[string]any:
		return json.Marshal(table.ToRemote(Record(p)))
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		return encodeRaw(table, data)
	}
}

// encodeRaw готовый JSON проходит ту же границу, что и Record:
// локальные поля убираются, удаление переводится в соглашение таблицы
func encodeRaw(table Table, data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return json.Marshal(table.ToRemote(rec))
}

// SyncNow просит планировщик разобрать очередь как можно скорее
func (s *Service) SyncNow() {
	s.requestDrain()
}

func (s *Service) requestDrain() {
	err := s.scheduler.ScheduleImmediate(ImmediateWorkName, ImmediateWork{
		RequiresNetwork: true,
		Expedited:       true,
		BackoffBase:     s.cfg.BackoffBase,
	}, s.drainJob)
	if err != nil {
		s.log.Warn("Не удалось запланировать разбор очереди", "error", err)
	}
}

// RefreshAll полная синхронизация всех таблиц
func (s *Service) RefreshAll(ctx context.Context) (*FullSyncReport, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.SyncAll(ctx, session)
}

// RefreshTable синхронизация одной таблицы
func (s *Service) RefreshTable(ctx context.Context, table Table) (*TableReport, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.SyncTable(ctx, session, table)
}

// SchedulePeriodicSync регистрирует периодическую синхронизацию.
// Повторный вызов не создает вторую работу.
func (s *Service) SchedulePeriodicSync(_ context.Context) error {
	err := s.scheduler.SchedulePeriodic(PeriodicWorkName, PeriodicWork{
		Interval:        s.cfg.PeriodicInterval,
		Flex:            s.cfg.PeriodicFlex,
		RequiresNetwork: true,
		BackoffBase:     s.cfg.BackoffBase,
	}, s.periodicJob)
	if err != nil {
		return fmt.Errorf("ошибка планирования синхронизации: %w", err)
	}
	return nil
}

// Cancel снимает все запланированные работы, вызывается при выходе из аккаунта
func (s *Service) Cancel() {
	s.scheduler.Cancel(PeriodicWorkName)
	s.scheduler.Cancel(ImmediateWorkName)
}

// Drain разбирает очередь в текущем потоке
func (s *Service) Drain(ctx context.Context) RunReport {
	session, err := s.session(ctx)
	if err != nil {
		s.log.Warn("Разбор очереди пропущен", "error", err)
		return RunReport{Outcome: OutcomeFailure}
	}

	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	return s.worker.Run(ctx, session)
}

func (s *Service) drainJob(ctx context.Context) Outcome {
	return s.Drain(ctx).Outcome
}

func (s *Service) periodicJob(ctx context.Context) Outcome {
	outcome := s.drainJob(ctx)
	if !s.cfg.RefreshOnPeriodic || ctx.Err() != nil {
		return outcome
	}

	if _, err := s.RefreshAll(ctx); err != nil {
		s.log.Warn("Периодическое обновление данных не удалось", "error", err)
		if outcome == OutcomeSuccess {
			return OutcomeRetry
		}
	}
	return outcome
}

// WatchReachability при появлении сети сразу разбирает очередь.
// Блокируется до отмены ctx.
func (s *Service) WatchReachability(ctx context.Context) {
	if s.reach == nil {
		return
	}

	online := s.reach.Online()
	for state := range s.reach.Subscribe(ctx) {
		if state && !online {
			s.log.Info("Сеть появилась, запускаем синхронизацию")
			s.requestDrain()
		}
		online = state
	}
}

// PendingCount число неподтвержденных изменений
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.queue.Count(ctx)
}

// Pending все неподтвержденные изменения
func (s *Service) Pending(ctx context.Context) ([]PendingChange, error) {
	return s.queue.ListAll(ctx)
}

// AtRisk изменения, у которых осталась последняя попытка
func (s *Service) AtRisk(ctx context.Context) ([]PendingChange, error) {
	return s.queue.ListDeadLettered(ctx, s.worker.cfg.MaxRetries-1)
}

func (s *Service) session(ctx context.Context) (Session, error) {
	if s.sessions == nil {
		return Session{}, ErrNotAuthenticated
	}
	session, err := s.sessions.Session(ctx)
	if errors.Is(err, ErrNotAuthenticated) {
		return Session{}, err
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if !session.Valid() {
		return Session{}, ErrNotAuthenticated
	}
	return session, nil
}
