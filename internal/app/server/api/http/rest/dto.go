package rest

import (
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"loanbook/internal/domain/rest"
)

// filterQuery фильтры вида ?column=eq.value. Набор колонок заранее
// не известен, поэтому они забираются из URL целиком.
type filterQuery struct {
	query url.Values
}

func (q *filterQuery) Resolve(ctx huma.Context) []error {
	u := ctx.URL()
	q.query = u.Query()
	return nil
}

type SelectInput struct {
	Table string `path:"table" doc:"Table name" example:"loans"`
	filterQuery
}

type SelectOutput struct {
	Body []rest.Row
}

type InsertInput struct {
	Table string `path:"table" doc:"Table name" example:"loans"`
	Body  rest.Row
}

type UpdateInput struct {
	Table string `path:"table" doc:"Table name" example:"loans"`
	filterQuery
	Body rest.Row
}

type DeleteInput struct {
	Table string `path:"table" doc:"Table name" example:"loans"`
	filterQuery
}
