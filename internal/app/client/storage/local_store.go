package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"loanbook/internal/domain/sync"
)

// LocalStore типизированный доступ к локальным копиям серверных таблиц.
// Записи, сделанные через Insert/Update/Delete, помечаются sync_status=pending;
// записи, пришедшие с сервера через Reconcile, помечаются synced.
type LocalStore struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

var _ sync.LocalStore = (*LocalStore)(nil)

func NewLocalStore(db *DB, log *slog.Logger) *LocalStore {
	return &LocalStore{
		db:  db,
		log: log.With(slog.String("component", "local_store")),
		now: time.Now,
	}
}

// Reconcile сверяет таблицу с набором записей сервера в одной транзакции:
// пришедшие записи вставляются или обновляются по id, локальные записи,
// которых нет в наборе, удаляются. Строки с неподтвержденными изменениями
// в очереди не трогаются.
func (s *LocalStore) Reconcile(ctx context.Context, table sync.Table, records []sync.Record) (int, error) {
	if !table.Valid() {
		return 0, fmt.Errorf("%w: %q", sync.ErrUnknownTable, table)
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	pending, err := pendingRecordIDs(ctx, tx, table)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения очереди: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertSQL(table))
	if err != nil {
		return 0, fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	keep := make(map[string]struct{}, len(records))
	written := 0
	for _, remote := range records {
		rec := table.SoftDelete().FromRemote(remote)
		id := rec.ID()
		if id == "" {
			s.log.Warn("Запись без id пропущена", "table", table)
			continue
		}
		keep[id] = struct{}{}
		if _, ok := pending[id]; ok {
			continue
		}

		args, err := columnValues(table, rec)
		if err != nil {
			return 0, fmt.Errorf("запись %s/%s: %w", table, id, err)
		}
		if _, err := stmt.ExecContext(ctx, append(args, sync.SyncStatusSynced)...); err != nil {
			return 0, fmt.Errorf("ошибка сохранения %s/%s: %w", table, id, err)
		}
		written++
	}

	localIDs, err := s.ids(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range localIDs {
		if _, ok := keep[id]; ok {
			continue
		}
		if _, ok := pending[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
			return 0, fmt.Errorf("ошибка удаления %s/%s: %w", table, id, err)
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	s.db.notifier.publish(string(table))
	s.log.Debug("Таблица сверена", "table", table, "written", written, "removed", removed)
	return written, nil
}

// Insert вставляет новую запись, созданную локально
func (s *LocalStore) Insert(ctx context.Context, table sync.Table, rec sync.Record) (sync.Record, error) {
	saved, err := s.InsertAll(ctx, table, []sync.Record{rec})
	if err != nil {
		return nil, err
	}
	return saved[0], nil
}

// InsertAll вставляет несколько записей в одной транзакции
func (s *LocalStore) InsertAll(ctx context.Context, table sync.Table, recs []sync.Record) ([]sync.Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", sync.ErrUnknownTable, table)
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UnixMilli()
	saved := make([]sync.Record, 0, len(recs))
	for _, in := range recs {
		rec := in.Clone()
		if rec.ID() == "" {
			return nil, fmt.Errorf("%w: у записи нет id", sync.ErrInvalidPayload)
		}
		if rec[sync.ColCreatedAt] == nil {
			rec[sync.ColCreatedAt] = now
		}
		rec[sync.ColUpdatedAt] = now
		delete(rec, sync.ColSyncStatus)

		cols, args, err := presentColumns(table, rec)
		if err != nil {
			return nil, err
		}
		cols = append(cols, sync.ColSyncStatus)
		args = append(args, sync.SyncStatusPending)

		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			table, strings.Join(cols, ", "), placeholders(len(cols)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("ошибка вставки %s/%s: %w", table, rec.ID(), err)
		}
		saved = append(saved, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	s.db.notifier.publish(string(table))
	return saved, nil
}

// Update применяет patch к записи и возвращает фактически записанные поля
func (s *LocalStore) Update(ctx context.Context, table sync.Table, id string, patch sync.Record) (sync.Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", sync.ErrUnknownTable, table)
	}

	rec := patch.Clone()
	delete(rec, sync.ColID)
	delete(rec, sync.ColSyncStatus)
	rec[sync.ColUpdatedAt] = s.now().UnixMilli()

	cols, args, err := presentColumns(table, rec)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, sync.ColSyncStatus+" = ?")
	args = append(args, sync.SyncStatusPending, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(sets, ", "))
	res, err := s.db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления %s/%s: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s/%s", sync.ErrRecordNotFound, table, id)
	}

	s.db.notifier.publish(string(table))
	return rec, nil
}

// Delete мягко удаляет запись и возвращает время удаления
func (s *LocalStore) Delete(ctx context.Context, table sync.Table, id string) (int64, error) {
	deletedAt := s.now().UnixMilli()
	if _, err := s.Update(ctx, table, id, sync.Record{sync.ColDeletedAt: deletedAt}); err != nil {
		return 0, err
	}
	return deletedAt, nil
}

// Restore снимает пометку удаления
func (s *LocalStore) Restore(ctx context.Context, table sync.Table, id string) error {
	_, err := s.Update(ctx, table, id, sync.Record{sync.ColDeletedAt: nil})
	return err
}

// DeleteAll физически очищает таблицу (например, при выходе из аккаунта)
func (s *LocalStore) DeleteAll(ctx context.Context, table sync.Table) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", sync.ErrUnknownTable, table)
	}
	if _, err := s.db.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("ошибка очистки %s: %w", table, err)
	}
	s.db.notifier.publish(string(table))
	return nil
}

func (s *LocalStore) GetByID(ctx context.Context, table sync.Table, id string) (sync.Record, error) {
	recs, err := s.query(ctx, table, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", sync.ErrRecordNotFound, table, id)
	}
	return recs[0], nil
}

// GetActive записи без пометки удаления
func (s *LocalStore) GetActive(ctx context.Context, table sync.Table) ([]sync.Record, error) {
	return s.query(ctx, table, `WHERE deleted_at IS NULL ORDER BY created_at, id`)
}

// GetDeleted мягко удаленные записи
func (s *LocalStore) GetDeleted(ctx context.Context, table sync.Table) ([]sync.Record, error) {
	return s.query(ctx, table, `WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC, id`)
}

// ObserveActive живой вариант GetActive
func (s *LocalStore) ObserveActive(ctx context.Context, table sync.Table) <-chan []sync.Record {
	return observe(ctx, s.db.notifier, s.log, string(table), func(ctx context.Context) ([]sync.Record, error) {
		return s.GetActive(ctx, table)
	})
}

// ObserveDeleted живой вариант GetDeleted
func (s *LocalStore) ObserveDeleted(ctx context.Context, table sync.Table) <-chan []sync.Record {
	return observe(ctx, s.db.notifier, s.log, string(table), func(ctx context.Context) ([]sync.Record, error) {
		return s.GetDeleted(ctx, table)
	})
}

func (s *LocalStore) query(ctx context.Context, table sync.Table, where string, args ...any) ([]sync.Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", sync.ErrUnknownTable, table)
	}

	cols := table.Columns()
	names := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		names = append(names, c.Name)
	}
	names = append(names, sync.ColSyncStatus)

	query := fmt.Sprintf(`SELECT %s FROM %s %s`, strings.Join(names, ", "), table, where)
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", table, err)
	}
	defer rows.Close()

	var out []sync.Record
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("ошибка чтения %s: %w", table, err)
		}

		rec := make(sync.Record, len(names))
		for i, name := range names {
			kind := sync.KindText
			if i < len(cols) {
				kind = cols[i].Kind
			}
			rec[name] = fromSQLite(kind, values[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *LocalStore) ids(ctx context.Context, tx *sql.Tx, table sync.Table) ([]string, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func upsertSQL(table sync.Table) string {
	cols := table.Columns()
	names := make([]string, 0, len(cols)+1)
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
		if c.Name != sync.ColID {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.Name, c.Name))
		}
	}
	names = append(names, sync.ColSyncStatus)
	sets = append(sets, fmt.Sprintf("%s = excluded.%s", sync.ColSyncStatus, sync.ColSyncStatus))

	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		table, strings.Join(names, ", "), placeholders(len(names)), strings.Join(sets, ", "))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// columnValues значения всех колонок таблицы в порядке схемы;
// неизвестные поля сервера (owner_id и т.п.) отбрасываются
func columnValues(table sync.Table, rec sync.Record) ([]any, error) {
	cols := table.Columns()
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		v, err := toSQLite(c.Kind, rec[c.Name])
		if err != nil {
			return nil, fmt.Errorf("колонка %s: %w", c.Name, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// presentColumns только колонки, которые есть в записи
func presentColumns(table sync.Table, rec sync.Record) ([]string, []any, error) {
	var (
		cols []string
		args []any
	)
	for _, c := range table.Columns() {
		raw, ok := rec[c.Name]
		if !ok {
			continue
		}
		v, err := toSQLite(c.Kind, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("колонка %s: %w", c.Name, err)
		}
		cols = append(cols, c.Name)
		args = append(args, v)
	}
	for k := range rec {
		if !table.HasColumn(k) {
			return nil, nil, fmt.Errorf("%w: в таблице %s нет колонки %q", sync.ErrInvalidPayload, table, k)
		}
	}
	return cols, args, nil
}

var errBadValue = errors.New("неподдерживаемое значение")

func toSQLite(kind sync.ColumnKind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case sync.KindInt:
		switch n := v.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errBadValue, v)
			}
			return int64(f), nil
		case float64:
			return int64(n), nil
		case float32:
			return int64(n), nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case bool:
			if n {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case sync.KindReal:
		switch n := v.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errBadValue, v)
			}
			return f, nil
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case sync.KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case json.Number:
			return b.String() != "0", nil
		case float64:
			return b != 0, nil
		case int64:
			return b != 0, nil
		case int:
			return b != 0, nil
		}
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case json.Number:
			return s.String(), nil
		case []any, map[string]any:
			data, err := json.Marshal(s)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		default:
			return fmt.Sprint(s), nil
		}
	}
	return nil, fmt.Errorf("%w: %T", errBadValue, v)
}

func fromSQLite(kind sync.ColumnKind, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch kind {
	case sync.KindBool:
		switch b := v.(type) {
		case int64:
			return b != 0
		case bool:
			return b
		}
	case sync.KindReal:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	}
	return v
}
