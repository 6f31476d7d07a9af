package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

var errNetwork = &RemoteError{Err: errors.New("connection refused")}

func newTestWorker(q Queue, r RemoteStore, sink DeadLetterSink) *Worker {
	return NewWorker(q, r, sink, WorkerConfig{MaxRetries: 3, ItemTimeout: time.Second}, slog.Default())
}

func enqueue(t *testing.T, q Queue, table Table, id string, op Operation, payload string) int64 {
	t.Helper()
	n, err := q.Enqueue(context.Background(), table, id, op, []byte(payload))
	require.NoError(t, err)
	return n
}

func TestWorker_EmptyQueue(t *testing.T) {
	remote := &stubRemote{}
	w := newTestWorker(newMemQueue(), remote, nil)

	report := w.Run(context.Background(), testSession)

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Zero(t, report.Processed)
	assert.Empty(t, remote.Calls())
}

func TestWorker_ReplaysInEnqueueOrder(t *testing.T) {
	q := newMemQueue()
	remote := &stubRemote{}
	enqueue(t, q, TableCustomers, "c1", OpInsert, `{"name":"A"}`)
	enqueue(t, q, TableCustomers, "c1", OpUpdate, `{"name":"B"}`)
	enqueue(t, q, TableLoans, "l1", OpInsert, `{"id":"l1","customer_id":"c1"}`)
	enqueue(t, q, TableCustomers, "c1", OpDelete, ``)

	report := newTestWorker(q, remote, nil).Run(context.Background(), testSession)

	require.Equal(t, OutcomeSuccess, report.Outcome)
	calls := remote.Calls()
	require.Len(t, calls, 4)

	assert.Equal(t, "insert", calls[0].Verb)
	assert.Equal(t, "c1", calls[0].RecordID)
	assert.Equal(t, "A", calls[0].Fields["name"])

	assert.Equal(t, "update", calls[1].Verb)
	assert.Equal(t, "c1", calls[1].RecordID)
	assert.Equal(t, "B", calls[1].Fields["name"])

	assert.Equal(t, TableLoans, calls[2].Table)
	assert.Equal(t, "delete", calls[3].Verb)

	n, _ := q.Count(context.Background())
	assert.Zero(t, n)
}

func TestWorker_SuccessRemovesExactlyOneEntry(t *testing.T) {
	q := newMemQueue()
	first := enqueue(t, q, TableCustomers, "c1", OpInsert, `{"name":"A"}`)
	second := enqueue(t, q, TableCustomers, "c2", OpInsert, `{"name":"B"}`)

	remote := &stubRemote{fail: func(c remoteCall) error {
		if c.RecordID == "c2" {
			return errNetwork
		}
		return nil
	}}

	newTestWorker(q, remote, nil).Run(context.Background(), testSession)

	_, ok := q.get(first)
	assert.False(t, ok, "successful entry must be removed")

	left, ok := q.get(second)
	require.True(t, ok)
	assert.Equal(t, 1, left.RetryCount)
	require.NotNil(t, left.LastError)
	assert.Contains(t, *left.LastError, "connection refused")
}

func TestWorker_AlwaysFailingEntryIsAttemptedMaxRetriesTimes(t *testing.T) {
	q := newMemQueue()
	sink := &captureSink{}
	remote := &stubRemote{fail: func(remoteCall) error { return errNetwork }}
	w := newTestWorker(q, remote, sink)
	enqueue(t, q, TableCustomers, "c1", OpInsert, `{"name":"A"}`)

	outcomes := make([]Outcome, 0, 3)
	for i := 0; i < 3; i++ {
		outcomes = append(outcomes, w.Run(context.Background(), testSession).Outcome)
	}

	assert.Equal(t, []Outcome{OutcomeFailure, OutcomeFailure, OutcomeFailure}, outcomes)
	assert.Len(t, remote.Calls(), 3)

	n, _ := q.Count(context.Background())
	assert.Zero(t, n, "entry must be dead-lettered after the third attempt")
	require.Len(t, sink.changes, 1)
	assert.Equal(t, 3, sink.changes[0].RetryCount)

	// Снятая запись больше не пробуется
	report := w.Run(context.Background(), testSession)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Len(t, remote.Calls(), 3)
}

func TestWorker_PartialFailureRequestsRetry(t *testing.T) {
	q := newMemQueue()
	ids := []int64{
		enqueue(t, q, TableCustomers, "ok-1", OpInsert, `{}`),
		enqueue(t, q, TableCustomers, "bad-1", OpInsert, `{}`),
		enqueue(t, q, TableCustomers, "ok-2", OpInsert, `{}`),
		enqueue(t, q, TableCustomers, "bad-2", OpInsert, `{}`),
		enqueue(t, q, TableCustomers, "ok-3", OpInsert, `{}`),
	}
	remote := &stubRemote{fail: func(c remoteCall) error {
		if c.RecordID[:3] == "bad" {
			return errNetwork
		}
		return nil
	}}

	report := newTestWorker(q, remote, nil).Run(context.Background(), testSession)

	assert.Equal(t, OutcomeRetry, report.Outcome)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 2, report.Failed)

	left, err := q.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, ids[1], left[0].ID)
	assert.Equal(t, ids[3], left[1].ID)
	for _, c := range left {
		assert.Equal(t, 1, c.RetryCount)
	}
}

func TestWorker_PermanentErrorDeadLettersImmediately(t *testing.T) {
	q := newMemQueue()
	sink := &captureSink{}
	remote := &stubRemote{fail: func(remoteCall) error {
		return &RemoteError{Status: http.StatusConflict, Message: "duplicate key", Permanent: true}
	}}
	enqueue(t, q, TableCustomers, "c1", OpInsert, `{"name":"A"}`)

	report := newTestWorker(q, remote, sink).Run(context.Background(), testSession)

	assert.Equal(t, OutcomeFailure, report.Outcome)
	assert.Equal(t, 1, report.DeadLettered)
	assert.Len(t, remote.Calls(), 1)
	n, _ := q.Count(context.Background())
	assert.Zero(t, n)
	require.Len(t, sink.changes, 1)
	assert.Equal(t, "c1", sink.changes[0].RecordID)
}

func TestWorker_InvalidPayloadIsDeadLettered(t *testing.T) {
	q := newMemQueue()
	remote := &stubRemote{}
	enqueue(t, q, TableCustomers, "c1", OpUpdate, `{not json`)

	report := newTestWorker(q, remote, nil).Run(context.Background(), testSession)

	assert.Equal(t, 1, report.DeadLettered)
	assert.Empty(t, remote.Calls())
}

func TestWorker_UnauthorizedStopsRunWithoutMarking(t *testing.T) {
	q := newMemQueue()
	remote := &stubRemote{fail: func(remoteCall) error {
		return &RemoteError{Status: http.StatusUnauthorized, Message: "jwt expired"}
	}}
	first := enqueue(t, q, TableCustomers, "c1", OpInsert, `{}`)
	enqueue(t, q, TableCustomers, "c2", OpInsert, `{}`)

	report := newTestWorker(q, remote, nil).Run(context.Background(), testSession)

	assert.Equal(t, OutcomeFailure, report.Outcome)
	assert.Len(t, remote.Calls(), 1)
	c, ok := q.get(first)
	require.True(t, ok)
	assert.Zero(t, c.RetryCount)
}

func TestWorker_ItemTimeout(t *testing.T) {
	q := newMemQueue()
	remote := &stubRemote{block: time.Second}
	enqueue(t, q, TableCustomers, "c1", OpInsert, `{}`)

	w := NewWorker(q, remote, nil, WorkerConfig{MaxRetries: 3, ItemTimeout: 20 * time.Millisecond}, slog.Default())

	start := time.Now()
	report := w.Run(context.Background(), testSession)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, OutcomeFailure, report.Outcome)
	left, _ := q.ListAll(context.Background())
	require.Len(t, left, 1)
	assert.Equal(t, 1, left[0].RetryCount)
	assert.Contains(t, *left[0].LastError, "таймаут")
}

func TestWorker_CancelledRunLeavesRemainingEntries(t *testing.T) {
	q := newMemQueue()
	enqueue(t, q, TableCustomers, "c1", OpInsert, `{}`)
	second := enqueue(t, q, TableCustomers, "c2", OpInsert, `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	remote := &stubRemote{fail: func(c remoteCall) error {
		if c.RecordID == "c1" {
			cancel()
		}
		return nil
	}}

	report := newTestWorker(q, remote, nil).Run(ctx, testSession)

	assert.True(t, report.Interrupted)
	assert.Equal(t, OutcomeRetry, report.Outcome)
	left, _ := q.ListAll(context.Background())
	require.Len(t, left, 1)
	assert.Equal(t, second, left[0].ID)
	assert.Zero(t, left[0].RetryCount)
}

func TestWorker_QueueReadFailure(t *testing.T) {
	q := newMemQueue()
	q.failList = true

	report := newTestWorker(q, &stubRemote{}, nil).Run(context.Background(), testSession)

	assert.Equal(t, OutcomeFailure, report.Outcome)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		report   RunReport
		expected Outcome
	}{
		{"all succeeded", RunReport{Processed: 3, Succeeded: 3}, OutcomeSuccess},
		{"all failed", RunReport{Processed: 3, Failed: 3}, OutcomeFailure},
		{"some failed", RunReport{Processed: 3, Succeeded: 1, Failed: 2}, OutcomeRetry},
		{"interrupted without failures", RunReport{Processed: 1, Succeeded: 1, Interrupted: true}, OutcomeRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, aggregate(tt.report))
		})
	}
}
