package sync

import (
	"context"
	"errors"
	"sort"
	gosync "sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// memQueue очередь в памяти с той же семантикой, что и SQLite-реализация
type memQueue struct {
	mu     gosync.Mutex
	nextID int64
	items  map[int64]*PendingChange
	// failList заставляет ListAll возвращать ошибку
	failList bool
}

func newMemQueue() *memQueue {
	return &memQueue{items: map[int64]*PendingChange{}}
}

func (q *memQueue) Enqueue(_ context.Context, table Table, recordID string, op Operation, payload []byte) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.items[q.nextID] = &PendingChange{
		ID:        q.nextID,
		Table:     table,
		RecordID:  recordID,
		Operation: op,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now().UnixMilli(),
	}
	return q.nextID, nil
}

func (q *memQueue) sorted(filter func(*PendingChange) bool) []PendingChange {
	out := make([]PendingChange, 0, len(q.items))
	for _, it := range q.items {
		if filter == nil || filter(it) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (q *memQueue) ListAll(context.Context) ([]PendingChange, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failList {
		return nil, errors.New("disk I/O error")
	}
	return q.sorted(nil), nil
}

func (q *memQueue) ListByTable(_ context.Context, table Table) ([]PendingChange, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sorted(func(c *PendingChange) bool { return c.Table == table }), nil
}

func (q *memQueue) MarkRetry(_ context.Context, id int64, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return ErrRecordNotFound
	}
	it.RetryCount++
	it.LastError = &errMsg
	return nil
}

func (q *memQueue) Remove(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, id)
	return nil
}

func (q *memQueue) RemoveByRecord(_ context.Context, table Table, recordID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, it := range q.items {
		if it.Table == table && it.RecordID == recordID {
			delete(q.items, id)
		}
	}
	return nil
}

func (q *memQueue) RemoveAll(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = map[int64]*PendingChange{}
	return nil
}

func (q *memQueue) ListDeadLettered(_ context.Context, maxRetries int) ([]PendingChange, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sorted(func(c *PendingChange) bool { return c.RetryCount >= maxRetries }), nil
}

func (q *memQueue) Count(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

func (q *memQueue) get(id int64) (PendingChange, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return PendingChange{}, false
	}
	return *it, true
}

// remoteCall один вызов удаленного хранилища
type remoteCall struct {
	Verb     string
	Table    Table
	RecordID string
	Fields   Record
}

// stubRemote записывает вызовы; поведение задается функцией fail
type stubRemote struct {
	mu     gosync.Mutex
	calls  []remoteCall
	fail   func(call remoteCall) error
	tables map[Table][]Record
	// fetchErr ошибки SelectAll по таблицам
	fetchErr map[Table]error
	block    time.Duration
}

func (r *stubRemote) record(c remoteCall) error {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail(c)
	}
	return nil
}

func (r *stubRemote) Calls() []remoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]remoteCall(nil), r.calls...)
}

func (r *stubRemote) SelectAll(ctx context.Context, _ Session, table Table) ([]Record, error) {
	if r.block > 0 {
		select {
		case <-time.After(r.block):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := r.fetchErr[table]; err != nil {
		return nil, err
	}
	return r.tables[table], nil
}

func (r *stubRemote) SelectEq(_ context.Context, _ Session, table Table, column, value string) ([]Record, error) {
	var out []Record
	for _, rec := range r.tables[table] {
		if rec[column] == value {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *stubRemote) Insert(ctx context.Context, _ Session, table Table, rec Record) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.record(remoteCall{Verb: "insert", Table: table, RecordID: rec.ID(), Fields: rec})
}

func (r *stubRemote) Update(ctx context.Context, _ Session, table Table, patch Record, _, value string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.record(remoteCall{Verb: "update", Table: table, RecordID: value, Fields: patch})
}

func (r *stubRemote) Delete(ctx context.Context, _ Session, table Table, _, value string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.record(remoteCall{Verb: "delete", Table: table, RecordID: value})
}

func (r *stubRemote) wait(ctx context.Context) error {
	if r.block == 0 {
		return nil
	}
	select {
	case <-time.After(r.block):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MockLocalStore мок локального хранилища
type MockLocalStore struct {
	mock.Mock
}

func (m *MockLocalStore) Reconcile(ctx context.Context, table Table, records []Record) (int, error) {
	args := m.Called(ctx, table, records)
	return args.Int(0), args.Error(1)
}

// MockScheduler мок планировщика
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) SchedulePeriodic(name string, req PeriodicWork, job Job) error {
	args := m.Called(name, req, job)
	return args.Error(0)
}

func (m *MockScheduler) ScheduleImmediate(name string, req ImmediateWork, job Job) error {
	args := m.Called(name, req, job)
	return args.Error(0)
}

func (m *MockScheduler) Cancel(name string) {
	m.Called(name)
}

// staticReach фиксированное состояние сети
type staticReach struct {
	mu     gosync.Mutex
	online bool
	ch     chan bool
}

func (r *staticReach) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

func (r *staticReach) Subscribe(ctx context.Context) <-chan bool {
	out := make(chan bool)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-r.ch:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// captureSink собирает снятые с очереди записи
type captureSink struct {
	mu      gosync.Mutex
	changes []PendingChange
}

func (c *captureSink) DeadLettered(_ context.Context, change PendingChange, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, change)
}

var testSession = Session{UserID: 1, Login: "owner", AccessToken: "token"}
