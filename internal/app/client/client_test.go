package client

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanbook/internal/app/client/config"
	"loanbook/internal/domain/sync"
	"loanbook/internal/utils/logger"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Env:           "local",
		ServerAddress: "127.0.0.1:1",
		ConfigDir:     dir,
		DBPath:        filepath.Join(dir, "loanbook.db"),
		TokenPath:     filepath.Join(dir, "session.json"),
		HTTPTimeout:   time.Second,
		ProbeInterval: time.Second,
		Sync: config.SyncConfig{
			MaxRetries:  3,
			ItemTimeout: time.Second,
			Interval:    15 * time.Minute,
			Flex:        5 * time.Minute,
			BackoffBase: 30 * time.Second,
		},
	}

	app, err := New(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestApp_SaveQueuesInsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	saved, err := app.Save(ctx, sync.TableCustomers, sync.Record{"name": "Anna"})
	require.NoError(t, err)
	id := saved.ID()
	require.NotEmpty(t, id)

	_, err = app.Save(ctx, sync.TableCustomers, sync.Record{"id": id, "phone": "+100"})
	require.NoError(t, err)

	pending, err := app.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, sync.OpInsert, pending[0].Operation)
	assert.Equal(t, sync.OpUpdate, pending[1].Operation)
	assert.Equal(t, id, pending[1].RecordID)

	insert := decode(t, pending[0].Payload)
	assert.Equal(t, "Anna", insert["name"])
	assert.NotContains(t, insert, sync.ColSyncStatus)

	update := decode(t, pending[1].Payload)
	assert.Equal(t, "+100", update["phone"])
	assert.NotContains(t, update, "id")

	rec, err := app.local.GetByID(ctx, sync.TableCustomers, id)
	require.NoError(t, err)
	assert.Equal(t, "Anna", rec["name"])
	assert.Equal(t, "+100", rec["phone"])
}

func TestApp_RemoveTranslatesSoftDelete(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	tests := []struct {
		name      string
		table     sync.Table
		rec       sync.Record
		wantFlag  bool
		wantField string
	}{
		{
			name:      "deleted_at family",
			table:     sync.TableCustomers,
			rec:       sync.Record{"name": "Boris"},
			wantField: sync.ColDeletedAt,
		},
		{
			name:      "flag family",
			table:     sync.TableInstallments,
			rec:       sync.Record{"loan_id": "l1", "amount": 10.5},
			wantFlag:  true,
			wantField: sync.ColDeletedAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, app.ClearQueue(ctx))

			saved, err := app.Save(ctx, tt.table, tt.rec)
			require.NoError(t, err)
			require.NoError(t, app.Remove(ctx, tt.table, saved.ID()))

			active, err := app.Records(ctx, tt.table, false)
			require.NoError(t, err)
			assert.Empty(t, active)
			deleted, err := app.Records(ctx, tt.table, true)
			require.NoError(t, err)
			require.Len(t, deleted, 1)

			pending, err := app.Pending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			payload := decode(t, pending[1].Payload)
			assert.NotNil(t, payload[tt.wantField])
			if tt.wantFlag {
				assert.Equal(t, true, payload[sync.ColIsDeleted])
			} else {
				assert.NotContains(t, payload, sync.ColIsDeleted)
			}
		})
	}
}

func TestApp_RemoveUnknownRecord(t *testing.T) {
	app := newTestApp(t)

	err := app.Remove(context.Background(), sync.TableLoans, "missing")

	assert.ErrorIs(t, err, sync.ErrRecordNotFound)
}

func TestApp_LogoutClearsLocalData(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	require.NoError(t, app.sessions.Save(sync.Session{AccessToken: "token", Login: "anna"}))
	_, err := app.Save(ctx, sync.TableLoans, sync.Record{"principal": 1000.0})
	require.NoError(t, err)
	assert.True(t, app.IsAuthenticated(ctx))

	require.NoError(t, app.Logout(ctx))

	assert.False(t, app.IsAuthenticated(ctx))
	count, err := app.Sync().PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	loans, err := app.Records(ctx, sync.TableLoans, false)
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestApp_StatusOffline(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	app.Enqueue(ctx, sync.TableCustomers, "", sync.OpInsert, sync.Record{"name": "X"})

	status, err := app.Status(ctx)

	require.NoError(t, err)
	assert.False(t, status.Online)
	assert.False(t, status.Authenticated)
	assert.Equal(t, 1, status.Pending)
	assert.Zero(t, status.AtRisk)
}

func TestApp_DrainWithoutSession(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	app.Enqueue(ctx, sync.TableCustomers, "c1", sync.OpInsert, sync.Record{"name": "X"})

	report := app.Drain(ctx)

	assert.Equal(t, sync.OutcomeFailure, report.Outcome)
	count, err := app.Sync().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
