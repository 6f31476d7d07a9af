package client

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"loanbook/internal/app/client/config"
	"loanbook/internal/app/client/reachability"
	"loanbook/internal/app/client/remote"
	"loanbook/internal/app/client/scheduler"
	"loanbook/internal/app/client/storage"
	"loanbook/internal/domain/sync"
)

type App struct {
	config    *config.Config
	log       *slog.Logger
	db        *storage.DB
	queue     *storage.QueueRepository
	local     *storage.LocalStore
	remote    *remote.Client
	reach     *reachability.Monitor
	scheduler *scheduler.Manager
	sessions  *SessionStore
	sync      *sync.Service

	bg gosync.WaitGroup
}

// StatusReport состояние синхронизации для команды sync --status
type StatusReport struct {
	Online        bool                   `json:"online"`
	Authenticated bool                   `json:"authenticated"`
	Login         string                 `json:"login,omitempty"`
	Pending       int                    `json:"pending"`
	AtRisk        int                    `json:"at_risk"`
	Works         []scheduler.WorkStatus `json:"works,omitempty"`
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	db, err := storage.Open(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации локального хранилища: %w", err)
	}

	remoteClient := remote.New(remote.Options{
		BaseURL: cfg.BaseURL(),
		APIKey:  cfg.APIKey,
		Timeout: cfg.HTTPTimeout,
	}, log)

	app := &App{
		config:   cfg,
		log:      log,
		db:       db,
		queue:    storage.NewQueueRepository(db, log),
		local:    storage.NewLocalStore(db, log),
		remote:   remoteClient,
		reach:    reachability.New(remoteClient, cfg.ProbeInterval, log),
		sessions: NewSessionStore(cfg.TokenPath),
	}
	app.scheduler = scheduler.New(app.reach, scheduler.Options{}, log)

	worker := sync.NewWorker(app.queue, remoteClient, sync.NewLogSink(log), sync.WorkerConfig{
		MaxRetries:  cfg.Sync.MaxRetries,
		ItemTimeout: cfg.Sync.ItemTimeout,
	}, log)

	app.sync = sync.NewService(sync.Deps{
		Queue:        app.queue,
		Engine:       sync.NewEngine(remoteClient, app.local, log),
		Worker:       worker,
		Scheduler:    app.scheduler,
		Reachability: app.reach,
		Sessions:     app.sessions,
	}, sync.Config{
		PeriodicInterval:  cfg.Sync.Interval,
		PeriodicFlex:      cfg.Sync.Flex,
		BackoffBase:       cfg.Sync.BackoffBase,
		RefreshOnPeriodic: true,
	}, log)

	return app, nil
}

// Close останавливает фоновые работы и закрывает базу
func (a *App) Close() error {
	a.scheduler.Shutdown()
	return a.db.Close()
}

// Sync сервис синхронизации
func (a *App) Sync() *sync.Service {
	return a.sync
}

// CheckConnection проверяет доступность сервера и обновляет признак сети
func (a *App) CheckConnection(ctx context.Context) bool {
	return a.reach.Probe(ctx)
}

// IsAuthenticated есть ли действующая сессия
func (a *App) IsAuthenticated(ctx context.Context) bool {
	_, err := a.sessions.Session(ctx)
	return err == nil
}

// Signup регистрирует нового пользователя
func (a *App) Signup(ctx context.Context, login, password string) error {
	if err := a.remote.Signup(ctx, login, password); err != nil {
		return err
	}
	a.log.Info("Пользователь успешно зарегистрирован", "login", login)
	return nil
}

// Login выполняет вход и сохраняет сессию
func (a *App) Login(ctx context.Context, login, password string) (sync.Session, error) {
	session, err := a.remote.Login(ctx, login, password)
	if err != nil {
		return sync.Session{}, err
	}
	if err := a.sessions.Save(session); err != nil {
		return sync.Session{}, err
	}

	a.log.Info("Вход выполнен успешно", "login", login)
	return session, nil
}

// Logout снимает фоновые работы, удаляет токен и локальные данные
func (a *App) Logout(ctx context.Context) error {
	a.sync.Cancel()

	if err := a.sessions.Clear(); err != nil {
		return err
	}

	var errs []error
	if err := a.queue.RemoveAll(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, table := range sync.AllTables() {
		if err := a.local.DeleteAll(ctx, table); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("ошибка очистки локальных данных: %w", err)
	}

	a.log.Info("Выход выполнен")
	return nil
}

// Refresh полная синхронизация всех таблиц
func (a *App) Refresh(ctx context.Context) (*sync.FullSyncReport, error) {
	return a.sync.RefreshAll(ctx)
}

// Drain разбирает очередь в текущем процессе
func (a *App) Drain(ctx context.Context) sync.RunReport {
	return a.sync.Drain(ctx)
}

// Status текущее состояние синхронизации
func (a *App) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{Online: a.reach.Probe(ctx)}

	if session, err := a.sessions.Session(ctx); err == nil {
		report.Authenticated = true
		report.Login = session.Login
	}

	pending, err := a.sync.PendingCount(ctx)
	if err != nil {
		return nil, err
	}
	report.Pending = pending

	atRisk, err := a.sync.AtRisk(ctx)
	if err != nil {
		return nil, err
	}
	report.AtRisk = len(atRisk)

	for _, name := range []string{sync.PeriodicWorkName, sync.ImmediateWorkName} {
		if st, ok := a.scheduler.Status(name); ok {
			report.Works = append(report.Works, st)
		}
	}
	return report, nil
}

// Pending очередь изменений
func (a *App) Pending(ctx context.Context) ([]sync.PendingChange, error) {
	return a.sync.Pending(ctx)
}

// AtRisk изменения на последней попытке
func (a *App) AtRisk(ctx context.Context) ([]sync.PendingChange, error) {
	return a.sync.AtRisk(ctx)
}

// ClearQueue удаляет все неподтвержденные изменения
func (a *App) ClearQueue(ctx context.Context) error {
	return a.queue.RemoveAll(ctx)
}

// Enqueue ставит изменение в очередь без изменения локальных таблиц
func (a *App) Enqueue(ctx context.Context, table sync.Table, recordID string, op sync.Operation, payload sync.Record) string {
	if recordID == "" {
		recordID = uuid.NewString()
	}
	a.sync.QueueOperation(ctx, table, recordID, op, payload)
	return recordID
}

// Save сохраняет запись локально и ставит изменение в очередь.
// Запись без id создается с новым UUID.
func (a *App) Save(ctx context.Context, table sync.Table, rec sync.Record) (sync.Record, error) {
	rec = rec.Clone()
	id := rec.ID()
	if id == "" {
		id = uuid.NewString()
		rec[sync.ColID] = id
	}

	_, err := a.local.GetByID(ctx, table, id)
	switch {
	case errors.Is(err, sync.ErrRecordNotFound):
		saved, err := a.local.Insert(ctx, table, rec)
		if err != nil {
			return nil, err
		}
		a.sync.QueueOperation(ctx, table, id, sync.OpInsert, saved)
		return saved, nil
	case err != nil:
		return nil, err
	}

	patch, err := a.local.Update(ctx, table, id, rec)
	if err != nil {
		return nil, err
	}
	a.sync.QueueOperation(ctx, table, id, sync.OpUpdate, patch)
	return a.local.GetByID(ctx, table, id)
}

// Remove мягко удаляет запись. На сервер уходит UPDATE с признаком удаления
// в соглашении таблицы.
func (a *App) Remove(ctx context.Context, table sync.Table, id string) error {
	deletedAt, err := a.local.Delete(ctx, table, id)
	if err != nil {
		return err
	}
	a.sync.QueueOperation(ctx, table, id, sync.OpUpdate, sync.Record{
		sync.ColDeletedAt: deletedAt,
		sync.ColUpdatedAt: deletedAt,
	})
	return nil
}

// Records активные или удаленные записи таблицы
func (a *App) Records(ctx context.Context, table sync.Table, deleted bool) ([]sync.Record, error) {
	if deleted {
		return a.local.GetDeleted(ctx, table)
	}
	return a.local.GetActive(ctx, table)
}

// ObserveRecords живой список записей таблицы
func (a *App) ObserveRecords(ctx context.Context, table sync.Table, deleted bool) <-chan []sync.Record {
	if deleted {
		return a.local.ObserveDeleted(ctx, table)
	}
	return a.local.ObserveActive(ctx, table)
}
