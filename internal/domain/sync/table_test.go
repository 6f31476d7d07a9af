package sync

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllTables_DependencyOrder(t *testing.T) {
	tables := AllTables()
	require.Len(t, tables, 8)
	assert.Equal(t, TableCustomers, tables[0])
	assert.Equal(t, TableLoans, tables[1])

	// Изменение копии не влияет на каталог
	tables[0] = "broken"
	assert.Equal(t, TableCustomers, AllTables()[0])
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable("loan_seniority")
	require.NoError(t, err)
	assert.Equal(t, TableLoanSeniority, table)

	_, err = ParseTable("users")
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("DELETE")
	require.NoError(t, err)
	assert.Equal(t, OpDelete, op)

	_, err = ParseOperation("upsert")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestTable_Columns(t *testing.T) {
	for _, table := range AllTables() {
		cols := table.Columns()
		assert.Equal(t, ColID, cols[0].Name, table)
		assert.True(t, table.HasColumn(ColDeletedAt), table)
		assert.True(t, table.HasColumn(ColCreatedAt), table)
		assert.False(t, table.HasColumn(ColSyncStatus), table)
	}
}

func TestSoftDelete_FromRemote(t *testing.T) {
	tests := []struct {
		name     string
		table    Table
		in       Record
		expected Record
	}{
		{
			name:     "nullable active",
			table:    TableCustomers,
			in:       Record{"id": "c1", "deleted_at": nil},
			expected: Record{"id": "c1", "deleted_at": nil},
		},
		{
			name:     "flag active",
			table:    TableInstallments,
			in:       Record{"id": "i1", "is_deleted": false, "deleted_at": json.Number("5")},
			expected: Record{"id": "i1", "deleted_at": nil},
		},
		{
			name:     "flag deleted with timestamp",
			table:    TableDataEntries,
			in:       Record{"id": "d1", "is_deleted": true, "deleted_at": json.Number("1700")},
			expected: Record{"id": "d1", "deleted_at": json.Number("1700")},
		},
		{
			name:     "flag deleted without timestamp",
			table:    TableLoanSeniority,
			in:       Record{"id": "s1", "is_deleted": true, "updated_at": json.Number("42")},
			expected: Record{"id": "s1", "updated_at": json.Number("42"), "deleted_at": json.Number("42")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.table.SoftDelete().FromRemote(tt.in))
		})
	}
}

func TestTable_ToRemote(t *testing.T) {
	ts := int64(1700)

	got := TableCustomers.ToRemote(Record{"id": "c1", "sync_status": "pending", "deleted_at": ts})
	assert.Equal(t, Record{"id": "c1", "deleted_at": ts}, got)

	got = TableCustomerInterest.ToRemote(Record{"id": "ci1", "deleted_at": nil})
	assert.Equal(t, Record{"id": "ci1", "is_deleted": false, "deleted_at": nil}, got)

	got = TableLoans.ToRemote(Record{"id": "l1", "principal": 10.5})
	assert.Equal(t, Record{"id": "l1", "principal": 10.5}, got)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(&RemoteError{Status: http.StatusBadRequest, Permanent: true}))
	assert.False(t, IsPermanent(&RemoteError{Status: http.StatusServiceUnavailable}))
	assert.False(t, IsPermanent(errors.New("plain")))
	assert.True(t, IsPermanent(ErrInvalidPayload))
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(&RemoteError{Status: http.StatusUnauthorized}))
	assert.True(t, IsUnauthorized(ErrNotAuthenticated))
	assert.False(t, IsUnauthorized(&RemoteError{Status: http.StatusForbidden, Permanent: true}))
}

func TestRecord_ID(t *testing.T) {
	assert.Equal(t, "abc", Record{"id": "abc"}.ID())
	assert.Equal(t, "", Record{}.ID())
	assert.Equal(t, "12", Record{"id": 12}.ID())
}
