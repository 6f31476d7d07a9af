package sync

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Engine полная синхронизация: забирает состояние всех таблиц с сервера
// и сверяет его с локальным хранилищем
type Engine struct {
	remote RemoteStore
	local  LocalStore
	log    *slog.Logger
	tables []Table
}

// TableReport результат синхронизации одной таблицы
type TableReport struct {
	Table   Table  `json:"table"`
	Fetched int    `json:"fetched"`
	Written int    `json:"written"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// FullSyncReport результат SyncAll
type FullSyncReport struct {
	Tables     []TableReport `json:"tables"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Skipped таблицы, которые не удалось получить с сервера
func (r *FullSyncReport) Skipped() []Table {
	var out []Table
	for _, t := range r.Tables {
		if t.Skipped {
			out = append(out, t.Table)
		}
	}
	return out
}

func NewEngine(remote RemoteStore, local LocalStore, log *slog.Logger) *Engine {
	return &Engine{
		remote: remote,
		local:  local,
		log:    log.With(slog.String("component", "sync_engine")),
		tables: AllTables(),
	}
}

type fetchResult struct {
	records []Record
	err     error
}

// SyncAll параллельно загружает все таблицы, затем последовательно
// сверяет их в порядке зависимостей. Ошибка загрузки таблицы не прерывает
// синхронизацию: локальные данные этой таблицы остаются как есть.
// Ошибкой завершается только сбой локальной записи.
func (e *Engine) SyncAll(ctx context.Context, s Session) (*FullSyncReport, error) {
	report := &FullSyncReport{StartedAt: time.Now()}
	results := make([]fetchResult, len(e.tables))

	var g errgroup.Group
	for i, table := range e.tables {
		g.Go(func() error {
			records, err := e.remote.SelectAll(ctx, s, table)
			results[i] = fetchResult{records: records, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("синхронизация прервана: %w", err)
	}

	for i, table := range e.tables {
		tr, err := e.reconcile(ctx, table, results[i])
		report.Tables = append(report.Tables, tr)
		if err != nil {
			report.FinishedAt = time.Now()
			return report, err
		}
	}

	report.FinishedAt = time.Now()
	e.log.Info("Полная синхронизация завершена",
		"duration", report.FinishedAt.Sub(report.StartedAt),
		"skipped", report.Skipped(),
	)
	return report, nil
}

// SyncTable то же, что SyncAll, для одной таблицы
func (e *Engine) SyncTable(ctx context.Context, s Session, table Table) (*TableReport, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	records, err := e.remote.SelectAll(ctx, s, table)
	tr, rerr := e.reconcile(ctx, table, fetchResult{records: records, err: err})
	return &tr, rerr
}

func (e *Engine) reconcile(ctx context.Context, table Table, res fetchResult) (TableReport, error) {
	tr := TableReport{Table: table}

	if res.err != nil {
		e.log.Warn("Не удалось получить таблицу, оставляем локальные данные",
			"table", table,
			"error", res.err,
		)
		tr.Skipped = true
		tr.Error = res.err.Error()
		return tr, nil
	}

	tr.Fetched = len(res.records)
	written, err := e.local.Reconcile(ctx, table, res.records)
	if err != nil {
		tr.Error = err.Error()
		return tr, fmt.Errorf("ошибка сохранения таблицы %s: %w", table, err)
	}
	tr.Written = written

	e.log.Debug("Таблица синхронизирована", "table", table, "fetched", tr.Fetched, "written", written)
	return tr, nil
}
