package rest

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"loanbook/internal/app/server/api/http/middleware/auth"
	"loanbook/internal/domain/rest"
)

type Handler struct {
	service    rest.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service rest.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.selectOp(), h.selectRows)
	huma.Register(api, h.insertOp(), h.insert)
	huma.Register(api, h.updateOp(), h.update)
	huma.Register(api, h.deleteOp(), h.delete)
}

func (h *Handler) selectRows(ctx context.Context, input *SelectInput) (*SelectOutput, error) {
	owner, err := h.owner(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := h.service.Select(ctx, owner, input.Table, input.query)
	if err != nil {
		return nil, h.toHTTP(err, "select", input.Table)
	}
	if rows == nil {
		rows = []rest.Row{}
	}
	return &SelectOutput{Body: rows}, nil
}

func (h *Handler) insert(ctx context.Context, input *InsertInput) (*struct{}, error) {
	owner, err := h.owner(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.service.Insert(ctx, owner, input.Table, input.Body); err != nil {
		return nil, h.toHTTP(err, "insert", input.Table)
	}
	return nil, nil
}

func (h *Handler) update(ctx context.Context, input *UpdateInput) (*struct{}, error) {
	owner, err := h.owner(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.service.Update(ctx, owner, input.Table, input.Body, input.query); err != nil {
		return nil, h.toHTTP(err, "update", input.Table)
	}
	return nil, nil
}

func (h *Handler) delete(ctx context.Context, input *DeleteInput) (*struct{}, error) {
	owner, err := h.owner(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.service.Delete(ctx, owner, input.Table, input.query); err != nil {
		return nil, h.toHTTP(err, "delete", input.Table)
	}
	return nil, nil
}

func (h *Handler) owner(ctx context.Context) (int64, error) {
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return 0, huma.Error401Unauthorized("unauthorized")
	}
	return userID, nil
}

func (h *Handler) toHTTP(err error, op, table string) error {
	switch {
	case errors.Is(err, rest.ErrUnknownTable):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, rest.ErrUnknownColumn),
		errors.Is(err, rest.ErrUnsupportedFilter),
		errors.Is(err, rest.ErrFilterRequired),
		errors.Is(err, rest.ErrEmptyBody):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, rest.ErrConflict):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, rest.ErrConstraintViolated):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		h.log.Error("table operation failed", "op", op, "table", table, "error", err)
		return huma.Error500InternalServerError("internal error")
	}
}
