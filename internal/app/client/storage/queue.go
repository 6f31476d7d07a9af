package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"loanbook/internal/domain/sync"
)

// QueueRepository очередь pending_sync поверх SQLite
type QueueRepository struct {
	db  *DB
	log *slog.Logger
}

var _ sync.Queue = (*QueueRepository)(nil)

func NewQueueRepository(db *DB, log *slog.Logger) *QueueRepository {
	return &QueueRepository{
		db:  db,
		log: log.With(slog.String("component", "pending_queue")),
	}
}

const selectChanges = `
	SELECT id, table_name, record_id, operation, payload, created_at, retry_count, last_error
	FROM pending_sync`

func (r *QueueRepository) Enqueue(ctx context.Context, table sync.Table, recordID string, op sync.Operation, payload []byte) (int64, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	res, err := r.db.db.ExecContext(ctx, `
		INSERT INTO pending_sync (table_name, record_id, operation, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(table), recordID, string(op), string(payload), time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("ошибка добавления в очередь: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения id записи очереди: %w", err)
	}

	r.db.notifier.publish(queueTopic)
	return id, nil
}

func (r *QueueRepository) ListAll(ctx context.Context) ([]sync.PendingChange, error) {
	return r.list(ctx, selectChanges+` ORDER BY id ASC`)
}

func (r *QueueRepository) ListByTable(ctx context.Context, table sync.Table) ([]sync.PendingChange, error) {
	return r.list(ctx, selectChanges+` WHERE table_name = ? ORDER BY id ASC`, string(table))
}

func (r *QueueRepository) ListDeadLettered(ctx context.Context, maxRetries int) ([]sync.PendingChange, error) {
	return r.list(ctx, selectChanges+` WHERE retry_count >= ? ORDER BY id ASC`, maxRetries)
}

func (r *QueueRepository) MarkRetry(ctx context.Context, id int64, errMsg string) error {
	res, err := r.db.db.ExecContext(ctx, `
		UPDATE pending_sync SET retry_count = retry_count + 1, last_error = ? WHERE id = ?
	`, errMsg, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления записи очереди: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pending_sync %d", sync.ErrRecordNotFound, id)
	}

	r.db.notifier.publish(queueTopic)
	return nil
}

func (r *QueueRepository) Remove(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM pending_sync WHERE id = ?`, id)
}

func (r *QueueRepository) RemoveByRecord(ctx context.Context, table sync.Table, recordID string) error {
	return r.exec(ctx, `DELETE FROM pending_sync WHERE table_name = ? AND record_id = ?`, string(table), recordID)
}

func (r *QueueRepository) RemoveAll(ctx context.Context) error {
	return r.exec(ctx, `DELETE FROM pending_sync`)
}

func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_sync`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчета очереди: %w", err)
	}
	return n, nil
}

// ObserveCount живой счетчик неподтвержденных изменений
func (r *QueueRepository) ObserveCount(ctx context.Context) <-chan int {
	return observe(ctx, r.db.notifier, r.log, queueTopic, r.Count)
}

func (r *QueueRepository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ошибка удаления из очереди: %w", err)
	}
	r.db.notifier.publish(queueTopic)
	return nil
}

func (r *QueueRepository) list(ctx context.Context, query string, args ...any) ([]sync.PendingChange, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения очереди: %w", err)
	}
	defer rows.Close()

	var out []sync.PendingChange
	for rows.Next() {
		var (
			c         sync.PendingChange
			table, op string
			payload   string
			lastError sql.NullString
		)
		if err := rows.Scan(&c.ID, &table, &c.RecordID, &op, &payload, &c.CreatedAt, &c.RetryCount, &lastError); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи очереди: %w", err)
		}
		c.Table = sync.Table(table)
		c.Operation = sync.Operation(op)
		c.Payload = []byte(payload)
		if lastError.Valid {
			msg := lastError.String
			c.LastError = &msg
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// pendingRecordIDs id записей таблицы, у которых есть неподтвержденные изменения
func pendingRecordIDs(ctx context.Context, q querier, table sync.Table) (map[string]struct{}, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT record_id FROM pending_sync WHERE table_name = ?`, string(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
