package rest

import "context"

type Repository interface {
	// Columns lists column names of the table as the database sees them
	Columns(ctx context.Context, table string) ([]string, error)
	Select(ctx context.Context, owner int64, table string, filters []Filter) ([]Row, error)
	// Insert is idempotent by id for the same owner
	Insert(ctx context.Context, owner int64, table string, row Row) error
	Update(ctx context.Context, owner int64, table string, patch Row, filters []Filter) (int64, error)
	Delete(ctx context.Context, owner int64, table string, filters []Filter) (int64, error)
}
