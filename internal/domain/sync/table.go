package sync

import "fmt"

// Table имя отслеживаемой таблицы
type Table string

const (
	TableCustomers        Table = "customers"
	TableLoans            Table = "loans"
	TableSubscriptions    Table = "subscriptions"
	TableInstallments     Table = "installments"
	TableDataEntries      Table = "data_entries"
	TableLoanSeniority    Table = "loan_seniority"
	TableCustomerInterest Table = "customer_interest"
	TableDocuments        Table = "documents"
)

// Порядок важен: сначала таблицы, на которые ссылаются внешние ключи.
var allTables = []Table{
	TableCustomers,
	TableLoans,
	TableSubscriptions,
	TableInstallments,
	TableDataEntries,
	TableLoanSeniority,
	TableCustomerInterest,
	TableDocuments,
}

// AllTables все таблицы в порядке зависимостей
func AllTables() []Table {
	return append([]Table(nil), allTables...)
}

// ParseTable проверяет имя таблицы
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, s)
	}
	return t, nil
}

func (t Table) Valid() bool {
	_, ok := schemas[t]
	return ok
}

func (t Table) String() string {
	return string(t)
}

// ColumnKind тип колонки, общий для локальной и удаленной схемы
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInt
	KindReal
	KindBool
)

// Column описание колонки
type Column struct {
	Name string
	Kind ColumnKind
}

// Служебные колонки есть в каждой таблице.
const (
	ColID         = "id"
	ColCreatedAt  = "created_at"
	ColUpdatedAt  = "updated_at"
	ColDeletedAt  = "deleted_at"
	ColIsDeleted  = "is_deleted"
	ColSyncStatus = "sync_status"
)

// Значения локальной колонки sync_status
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
)

// localOnly колонки, которые никогда не уходят на сервер
var localOnly = map[string]struct{}{
	ColSyncStatus: {},
}

type schema struct {
	columns    []Column
	softDelete SoftDelete
}

var schemas = map[Table]schema{
	TableCustomers: {
		columns: withCommon(
			Column{"name", KindText},
			Column{"phone", KindText},
			Column{"email", KindText},
			Column{"address", KindText},
			Column{"notes", KindText},
		),
		softDelete: NullableDeletedAt{},
	},
	TableLoans: {
		columns: withCommon(
			Column{"customer_id", KindText},
			Column{"principal", KindReal},
			Column{"interest_rate", KindReal},
			Column{"start_date", KindText},
			Column{"term_months", KindInt},
			Column{"status", KindText},
			Column{"notes", KindText},
		),
		softDelete: NullableDeletedAt{},
	},
	TableSubscriptions: {
		columns: withCommon(
			Column{"customer_id", KindText},
			Column{"plan", KindText},
			Column{"amount", KindReal},
			Column{"billing_day", KindInt},
			Column{"start_date", KindText},
			Column{"end_date", KindText},
			Column{"active", KindBool},
		),
		softDelete: NullableDeletedAt{},
	},
	TableInstallments: {
		columns: withCommon(
			Column{"loan_id", KindText},
			Column{"due_date", KindText},
			Column{"amount", KindReal},
			Column{"paid_amount", KindReal},
			Column{"paid_at", KindInt},
		),
		softDelete: FlagAndTimestamp{},
	},
	TableDataEntries: {
		columns: withCommon(
			Column{"category", KindText},
			Column{"amount", KindReal},
			Column{"entry_date", KindText},
			Column{"description", KindText},
		),
		softDelete: FlagAndTimestamp{},
	},
	TableLoanSeniority: {
		columns: withCommon(
			Column{"loan_id", KindText},
			Column{"rank", KindInt},
			Column{"note", KindText},
		),
		softDelete: FlagAndTimestamp{},
	},
	TableCustomerInterest: {
		columns: withCommon(
			Column{"customer_id", KindText},
			Column{"loan_id", KindText},
			Column{"rate", KindReal},
			Column{"accrued", KindReal},
			Column{"period_start", KindText},
			Column{"period_end", KindText},
		),
		softDelete: FlagAndTimestamp{},
	},
	TableDocuments: {
		columns: withCommon(
			Column{"customer_id", KindText},
			Column{"loan_id", KindText},
			Column{"title", KindText},
			Column{"url", KindText},
			Column{"mime_type", KindText},
		),
		softDelete: NullableDeletedAt{},
	},
}

func withCommon(cols ...Column) []Column {
	out := []Column{{ColID, KindText}}
	out = append(out, cols...)
	return append(out,
		Column{ColCreatedAt, KindInt},
		Column{ColUpdatedAt, KindInt},
		Column{ColDeletedAt, KindInt},
	)
}

// Columns колонки таблицы, общие с сервером
func (t Table) Columns() []Column {
	return append([]Column(nil), schemas[t].columns...)
}

// HasColumn есть ли такая колонка в общей схеме
func (t Table) HasColumn(name string) bool {
	for _, c := range schemas[t].columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// SoftDelete соглашение о мягком удалении для таблицы
func (t Table) SoftDelete() SoftDelete {
	return schemas[t].softDelete
}

// StripLocal убирает локальные поля перед отправкой на сервер
func StripLocal(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if _, skip := localOnly[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

// ToRemote готовит локальную запись к отправке: убирает локальные поля
// и переводит deleted_at в соглашение таблицы.
func (t Table) ToRemote(r Record) Record {
	out := StripLocal(r)
	v, ok := out[ColDeletedAt]
	if !ok {
		return out
	}
	delete(out, ColDeletedAt)

	var deletedAt *int64
	if ms, ok := toMillis(v); ok {
		deletedAt = &ms
	}
	for k, val := range t.SoftDelete().ToRemote(deletedAt) {
		out[k] = val
	}
	return out
}

func toMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
