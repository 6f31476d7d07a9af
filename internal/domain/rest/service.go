package rest

import (
	"context"
	"fmt"
	"net/url"
	gosync "sync"

	"golang.org/x/exp/slog"

	"loanbook/internal/domain/sync"
)

type Servicer interface {
	Select(ctx context.Context, owner int64, table string, q url.Values) ([]Row, error)
	Insert(ctx context.Context, owner int64, table string, row Row) error
	Update(ctx context.Context, owner int64, table string, patch Row, q url.Values) error
	Delete(ctx context.Context, owner int64, table string, q url.Values) error
}

// Service generic table gateway. Table names come from the shared catalogue,
// column names are checked against the live schema.
type Service struct {
	repo Repository
	log  *slog.Logger

	mu      gosync.RWMutex
	columns map[string]map[string]struct{}
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		log:     log.With(slog.String("component", "rest_service")),
		columns: make(map[string]map[string]struct{}),
	}
}

func (s *Service) Select(ctx context.Context, owner int64, table string, q url.Values) ([]Row, error) {
	filters, err := s.filters(ctx, table, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Select(ctx, owner, table, filters)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

func (s *Service) Insert(ctx context.Context, owner int64, table string, row Row) error {
	if err := s.checkBody(ctx, table, row); err != nil {
		return err
	}
	if id, _ := row[sync.ColID].(string); id == "" {
		return fmt.Errorf("%w: id is required", ErrEmptyBody)
	}
	if err := s.repo.Insert(ctx, owner, table, row); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (s *Service) Update(ctx context.Context, owner int64, table string, patch Row, q url.Values) error {
	filters, err := s.requiredFilters(ctx, table, q)
	if err != nil {
		return err
	}
	if err := s.checkBody(ctx, table, patch); err != nil {
		return err
	}

	n, err := s.repo.Update(ctx, owner, table, patch, filters)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	s.log.Debug("rows updated", "table", table, "owner", owner, "rows", n)
	return nil
}

func (s *Service) Delete(ctx context.Context, owner int64, table string, q url.Values) error {
	filters, err := s.requiredFilters(ctx, table, q)
	if err != nil {
		return err
	}

	n, err := s.repo.Delete(ctx, owner, table, filters)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	s.log.Debug("rows deleted", "table", table, "owner", owner, "rows", n)
	return nil
}

func (s *Service) requiredFilters(ctx context.Context, table string, q url.Values) ([]Filter, error) {
	filters, err := s.filters(ctx, table, q)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, ErrFilterRequired
	}
	return filters, nil
}

func (s *Service) filters(ctx context.Context, table string, q url.Values) ([]Filter, error) {
	allowed, err := s.allowedColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	filters, err := ParseFilters(q)
	if err != nil {
		return nil, err
	}
	for _, f := range filters {
		if _, ok := allowed[f.Column]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, f.Column)
		}
	}
	return filters, nil
}

func (s *Service) checkBody(ctx context.Context, table string, row Row) error {
	if len(row) == 0 {
		return ErrEmptyBody
	}
	allowed, err := s.allowedColumns(ctx, table)
	if err != nil {
		return err
	}
	for column := range row {
		if _, ok := allowed[column]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
		}
	}
	return nil
}

// allowedColumns the live column set minus owner_id, cached per table
func (s *Service) allowedColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	if _, err := sync.ParseTable(table); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	s.mu.RLock()
	cols, ok := s.columns[table]
	s.mu.RUnlock()
	if ok {
		return cols, nil
	}

	names, err := s.repo.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %q has no columns", ErrUnknownTable, table)
	}

	cols = make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != OwnerColumn {
			cols[n] = struct{}{}
		}
	}

	s.mu.Lock()
	s.columns[table] = cols
	s.mu.Unlock()
	return cols, nil
}
