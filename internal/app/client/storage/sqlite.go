package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"

	"loanbook/internal/domain/sync"
)

const queueTopic = "pending_sync"

// DB локальная база SQLite: очередь изменений и копии серверных таблиц
type DB struct {
	db       *sql.DB
	log      *slog.Logger
	notifier *notifier
}

// Open открывает (и при необходимости создает) базу по пути path
func Open(path string, log *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	storage := &DB{
		db:       db,
		log:      log.With(slog.String("component", "sqlite")),
		notifier: newNotifier(),
	}

	// Создаем таблицы
	if err := storage.initTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	return storage, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) initTables(ctx context.Context) error {
	// Очередь изменений
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pending_sync (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			operation TEXT NOT NULL CHECK (operation IN ('INSERT', 'UPDATE', 'DELETE')),
			payload TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_pending_sync_record ON pending_sync(table_name, record_id);
	`)
	if err != nil {
		return err
	}

	for _, table := range sync.AllTables() {
		if _, err := s.db.ExecContext(ctx, createTableSQL(table)); err != nil {
			return fmt.Errorf("таблица %s: %w", table, err)
		}
	}
	return nil
}

func createTableSQL(table sync.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	for _, c := range table.Columns() {
		if c.Name == sync.ColID {
			b.WriteString("\tid TEXT PRIMARY KEY,\n")
			continue
		}
		fmt.Fprintf(&b, "\t%s %s,\n", c.Name, sqliteType(c.Kind))
	}
	fmt.Fprintf(&b, "\t%s TEXT NOT NULL DEFAULT '%s'\n);\n", sync.ColSyncStatus, sync.SyncStatusSynced)
	fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS idx_%s_deleted ON %s(%s);", table, table, sync.ColDeletedAt)
	return b.String()
}

func sqliteType(k sync.ColumnKind) string {
	switch k {
	case sync.KindInt:
		return "INTEGER"
	case sync.KindReal:
		return "REAL"
	case sync.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
