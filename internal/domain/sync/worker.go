package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"
)

const (
	DefaultMaxRetries  = 3
	DefaultItemTimeout = 30 * time.Second
)

// WorkerConfig настройки разбора очереди
type WorkerConfig struct {
	// MaxRetries сколько раз пробуем запись, прежде чем снять ее с очереди
	MaxRetries int
	// ItemTimeout ограничение на один запрос к серверу
	ItemTimeout time.Duration
}

// RunReport итог одного прогона
type RunReport struct {
	Outcome      Outcome `json:"outcome"`
	Processed    int     `json:"processed"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	DeadLettered int     `json:"dead_lettered"`
	Interrupted  bool    `json:"interrupted"`
}

// Worker воспроизводит изменения из очереди на сервере строго по порядку id
type Worker struct {
	queue  Queue
	remote RemoteStore
	sink   DeadLetterSink
	cfg    WorkerConfig
	log    *slog.Logger
}

func NewWorker(queue Queue, remote RemoteStore, sink DeadLetterSink, cfg WorkerConfig, log *slog.Logger) *Worker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = DefaultItemTimeout
	}
	log = log.With(slog.String("component", "queue_worker"))
	if sink == nil {
		sink = LogSink{log: log}
	}
	return &Worker{
		queue:  queue,
		remote: remote,
		sink:   sink,
		cfg:    cfg,
		log:    log,
	}
}

// Run разбирает снимок очереди. Записи обрабатываются последовательно,
// запись удаляется из очереди только после подтверждения сервером.
func (w *Worker) Run(ctx context.Context, s Session) RunReport {
	changes, err := w.queue.ListAll(ctx)
	if err != nil {
		w.log.Error("Ошибка чтения очереди", "error", err)
		return RunReport{Outcome: OutcomeFailure}
	}
	if len(changes) == 0 {
		return RunReport{Outcome: OutcomeSuccess}
	}

	w.log.Info("Начало разбора очереди", "pending", len(changes))

	var report RunReport
	for _, change := range changes {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		err := w.replay(ctx, s, change)
		if err != nil && ctx.Err() != nil {
			// Прогон отменен посреди запроса: запись остается как есть
			report.Interrupted = true
			break
		}
		if err != nil && IsUnauthorized(err) {
			w.log.Warn("Сервер отклонил сессию, разбор очереди остановлен", "error", err)
			report.Interrupted = true
			report.Failed++
			report.Processed++
			break
		}

		report.Processed++
		if err == nil {
			if rerr := w.queue.Remove(ctx, change.ID); rerr != nil {
				// Изменение применено, но осталось в очереди: будет повторено
				w.log.Error("Ошибка удаления записи из очереди", "id", change.ID, "error", rerr)
				report.Failed++
				continue
			}
			report.Succeeded++
			continue
		}

		report.Failed++
		if w.deadLetter(ctx, change, err) {
			report.DeadLettered++
		}
	}

	report.Outcome = aggregate(report)
	w.log.Info("Разбор очереди завершен",
		"outcome", report.Outcome,
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"dead_lettered", report.DeadLettered,
	)
	return report
}

func aggregate(r RunReport) Outcome {
	switch {
	case r.Failed == 0 && !r.Interrupted:
		return OutcomeSuccess
	case r.Failed == 0:
		return OutcomeRetry
	case r.Failed == r.Processed:
		return OutcomeFailure
	default:
		return OutcomeRetry
	}
}

// deadLetter решает судьбу неудачной записи. Возвращает true, если запись
// снята с очереди.
func (w *Worker) deadLetter(ctx context.Context, change PendingChange, cause error) bool {
	attempts := change.RetryCount + 1
	permanent := IsPermanent(cause)

	if !permanent && attempts < w.cfg.MaxRetries {
		if err := w.queue.MarkRetry(ctx, change.ID, cause.Error()); err != nil {
			w.log.Error("Ошибка обновления счетчика попыток", "id", change.ID, "error", err)
		}
		w.log.Debug("Запись оставлена в очереди",
			"id", change.ID,
			"attempt", attempts,
			"error", cause,
		)
		return false
	}

	if err := w.queue.Remove(ctx, change.ID); err != nil {
		w.log.Error("Ошибка удаления записи из очереди", "id", change.ID, "error", err)
		return false
	}
	change.RetryCount = attempts
	msg := cause.Error()
	change.LastError = &msg
	w.sink.DeadLettered(ctx, change, cause)
	return true
}

func (w *Worker) replay(ctx context.Context, s Session, change PendingChange) error {
	itemCtx, cancel := context.WithTimeout(ctx, w.cfg.ItemTimeout)
	defer cancel()

	payload, err := decodePayload(change)
	if err != nil {
		return err
	}

	switch change.Operation {
	case OpInsert:
		if payload.ID() == "" {
			payload[ColID] = change.RecordID
		}
		err = w.remote.Insert(itemCtx, s, change.Table, payload)
	case OpUpdate:
		delete(payload, ColID)
		err = w.remote.Update(itemCtx, s, change.Table, payload, ColID, change.RecordID)
	case OpDelete:
		err = w.remote.Delete(itemCtx, s, change.Table, ColID, change.RecordID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, change.Operation)
	}

	if err != nil && errors.Is(itemCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("превышен таймаут запроса (%s): %w", w.cfg.ItemTimeout, err)
	}
	return err
}

func decodePayload(change PendingChange) (Record, error) {
	payload := Record{}
	if len(change.Payload) == 0 || string(change.Payload) == "null" {
		if change.Operation == OpDelete {
			return payload, nil
		}
		return nil, fmt.Errorf("%w: пустые данные для %s", ErrInvalidPayload, change.Operation)
	}
	if err := json.Unmarshal(change.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload == nil {
		payload = Record{}
	}
	return payload, nil
}

// LogSink пишет снятые с очереди записи в лог
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: log}
}

func (l LogSink) DeadLettered(_ context.Context, change PendingChange, cause error) {
	l.log.Warn("Изменение не удалось синхронизировать, запись снята с очереди",
		"id", change.ID,
		"table", change.Table,
		"record_id", change.RecordID,
		"operation", change.Operation,
		"attempts", change.RetryCount,
		"error", cause,
	)
}
