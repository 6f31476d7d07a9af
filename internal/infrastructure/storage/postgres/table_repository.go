package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"loanbook/internal/domain/rest"
)

// TableRepository generic access to the synced tables. Identifiers reaching
// this layer are already whitelisted by rest.Service and are quoted anyway.
type TableRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewTableRepository(db *Storage, log *slog.Logger) *TableRepository {
	return &TableRepository{
		db:  db,
		log: log,
	}
}

func (r *TableRepository) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT column_name FROM information_schema.columns
         WHERE table_schema = current_schema() AND table_name = $1
         ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}
	return names, nil
}

func (r *TableRepository) Select(ctx context.Context, owner int64, table string, filters []rest.Filter) ([]rest.Row, error) {
	where, args := whereClause(owner, filters, 1)
	query := fmt.Sprintf(
		`SELECT COALESCE(jsonb_agg(to_jsonb(t) - '%s' ORDER BY t.created_at, t.id), '[]'::jsonb)
         FROM %s AS t WHERE %s`,
		rest.OwnerColumn, ident(table), where)

	var raw []byte
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}

	var out []rest.Row
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return out, nil
}

// Insert upserts by id. A replayed insert from the same owner updates the row,
// an id owned by someone else is a conflict.
func (r *TableRepository) Insert(ctx context.Context, owner int64, table string, row rest.Row) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}

	cols := sortedKeys(row)
	quoted := make([]string, len(cols))
	sets := make([]string, 0, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
		if c != "id" {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
		}
	}
	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = fmt.Sprintf("DO UPDATE SET %s WHERE t.%s = EXCLUDED.%s",
			strings.Join(sets, ", "), ident(rest.OwnerColumn), ident(rest.OwnerColumn))
	}

	query := fmt.Sprintf(
		`INSERT INTO %[1]s AS t (%[2]s, %[3]s)
         SELECT %[2]s, $1 FROM jsonb_populate_record(NULL::%[1]s, $2::jsonb)
         ON CONFLICT (id) %[4]s
         RETURNING t.%[3]s`,
		ident(table), strings.Join(quoted, ", "), ident(rest.OwnerColumn), conflict)

	var stored int64
	err = r.db.Pool().QueryRow(ctx, query, owner, body).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// конфликт с чужой строкой: ни вставки, ни обновления
		return rest.ErrConflict
	case err != nil:
		return mapWriteError(err)
	}
	return nil
}

func (r *TableRepository) Update(ctx context.Context, owner int64, table string, patch rest.Row, filters []rest.Filter) (int64, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return 0, fmt.Errorf("encode patch: %w", err)
	}

	cols := sortedKeys(patch)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = p.%s", ident(c), ident(c))
	}

	where, args := whereClause(owner, filters, 2)
	query := fmt.Sprintf(
		`UPDATE %s AS t SET %s
         FROM jsonb_populate_record(NULL::%s, $1::jsonb) AS p
         WHERE %s`,
		ident(table), strings.Join(sets, ", "), ident(table), where)

	tag, err := r.db.Pool().Exec(ctx, query, append([]any{body}, args...)...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *TableRepository) Delete(ctx context.Context, owner int64, table string, filters []rest.Filter) (int64, error) {
	where, args := whereClause(owner, filters, 1)
	tag, err := r.db.Pool().Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s AS t WHERE %s`, ident(table), where), args...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return tag.RowsAffected(), nil
}

// whereClause owner scope plus eq filters. Values compare as text so one
// string parameter works for any column type.
func whereClause(owner int64, filters []rest.Filter, firstArg int) (string, []any) {
	conds := []string{fmt.Sprintf("t.%s = $%d", ident(rest.OwnerColumn), firstArg)}
	args := []any{owner}
	for i, f := range filters {
		conds = append(conds, fmt.Sprintf("t.%s::text = $%d", ident(f.Column), firstArg+i+1))
		args = append(args, f.Value)
	}
	return strings.Join(conds, " AND "), args
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func sortedKeys(row rest.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mapWriteError(err error) error {
	switch pgCode(err) {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %v", rest.ErrConflict, err)
	case codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation, codeInvalidText:
		return fmt.Errorf("%w: %v", rest.ErrConstraintViolated, err)
	}
	return err
}
