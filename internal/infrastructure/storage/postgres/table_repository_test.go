package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"loanbook/internal/domain/rest"
)

func TestWhereClause(t *testing.T) {
	where, args := whereClause(7, []rest.Filter{{Column: "id", Value: "c1"}, {Column: "deleted_at", Value: "5"}}, 2)

	assert.Equal(t, `t."owner_id" = $2 AND t."id"::text = $3 AND t."deleted_at"::text = $4`, where)
	assert.Equal(t, []any{int64(7), "c1", "5"}, args)
}

func TestIdent(t *testing.T) {
	assert.Equal(t, `"customers"`, ident("customers"))
	assert.Equal(t, `"bad""name"`, ident(`bad"name`))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "id"}, sortedKeys(rest.Row{"id": 1, "b": 2, "a": 3}))
}
