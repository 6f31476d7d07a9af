package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanbook/internal/app/client/remote"
	"loanbook/internal/app/server/config"
	"loanbook/internal/domain/rest"
	"loanbook/internal/domain/session"
	"loanbook/internal/domain/sync"
	"loanbook/internal/domain/user"
	"loanbook/internal/utils/logger"
)

const testAPIKey = "anon-key"

type memUsers struct {
	mu     gosync.Mutex
	nextID int64
	users  map[string]user.User
}

func (m *memUsers) Create(_ context.Context, login, passwordHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[login]; ok {
		return 0, user.ErrLoginTaken
	}
	m.nextID++
	m.users[login] = user.User{ID: m.nextID, Login: login, Password: passwordHash, CreatedAt: time.Now()}
	return m.nextID, nil
}

func (m *memUsers) FindByLogin(_ context.Context, login string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[login]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

type storedSession struct {
	userID    int64
	expiresAt time.Time
}

type memSessions struct {
	mu       gosync.Mutex
	sessions map[string]storedSession
}

func (m *memSessions) Create(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = storedSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memSessions) Validate(_ context.Context, tokenHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok || time.Now().After(s.expiresAt) {
		return 0, session.ErrInvalidSession
	}
	return s.userID, nil
}

type ownedRow struct {
	owner int64
	row   rest.Row
}

// memTables таблицы в памяти с той же семантикой владельца, что у PostgreSQL
type memTables struct {
	mu   gosync.Mutex
	rows map[string]map[string]ownedRow
}

func (m *memTables) Columns(_ context.Context, table string) ([]string, error) {
	if table != string(sync.TableCustomers) {
		return nil, nil
	}
	return []string{"id", "name", "phone", "created_at", "updated_at", "deleted_at", rest.OwnerColumn}, nil
}

func (m *memTables) Select(_ context.Context, owner int64, table string, filters []rest.Filter) ([]rest.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rest.Row
	for _, r := range m.rows[table] {
		if r.owner == owner && matches(r.row, filters) {
			out = append(out, r.row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return fmt.Sprint(out[i]["id"]) < fmt.Sprint(out[j]["id"]) })
	return out, nil
}

func (m *memTables) Insert(_ context.Context, owner int64, table string, row rest.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[table] == nil {
		m.rows[table] = make(map[string]ownedRow)
	}
	id := fmt.Sprint(row["id"])
	if cur, ok := m.rows[table][id]; ok && cur.owner != owner {
		return rest.ErrConflict
	}
	m.rows[table][id] = ownedRow{owner: owner, row: row}
	return nil
}

func (m *memTables) Update(_ context.Context, owner int64, table string, patch rest.Row, filters []rest.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows[table] {
		if r.owner != owner || !matches(r.row, filters) {
			continue
		}
		for k, v := range patch {
			r.row[k] = v
		}
		n++
	}
	return n, nil
}

func (m *memTables) Delete(_ context.Context, owner int64, table string, filters []rest.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows[table] {
		if r.owner == owner && matches(r.row, filters) {
			delete(m.rows[table], id)
			n++
		}
	}
	return n, nil
}

func matches(row rest.Row, filters []rest.Filter) bool {
	for _, f := range filters {
		if fmt.Sprint(row[f.Column]) != f.Value {
			return false
		}
	}
	return true
}

func newGateway(t *testing.T) string {
	t.Helper()
	log := logger.Discard()

	cfg := &config.Config{Env: config.EnvLocal}
	cfg.Server.APIKey = testAPIKey

	svc := Services{
		Users:    user.NewService(&memUsers{users: make(map[string]user.User)}, user.NewCredentialsValidator(), log),
		Sessions: session.NewService(&memSessions{sessions: make(map[string]storedSession)}, time.Hour, log),
		Tables:   rest.NewService(&memTables{rows: make(map[string]map[string]ownedRow)}, log),
	}

	srv := httptest.NewServer(NewMux(svc, cfg, log))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newRemote(baseURL, apiKey string) *remote.Client {
	return remote.New(remote.Options{BaseURL: baseURL, APIKey: apiKey, Timeout: 5 * time.Second}, logger.Discard())
}

func login(t *testing.T, c *remote.Client, name string) sync.Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Signup(ctx, name, "secret123"))
	s, err := c.Login(ctx, name, "secret123")
	require.NoError(t, err)
	require.True(t, s.Valid())
	return s
}

func requireStatus(t *testing.T, err error, status int, permanent bool) {
	t.Helper()
	var re *sync.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, status, re.Status)
	assert.Equal(t, permanent, re.Permanent)
}

func TestGateway_RemoteClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newRemote(newGateway(t), testAPIKey)

	require.NoError(t, c.HealthCheck(ctx))
	s := login(t, c, "anna")

	table := sync.TableCustomers
	require.NoError(t, c.Insert(ctx, s, table, sync.Record{"id": "c1", "name": "A"}))
	require.NoError(t, c.Insert(ctx, s, table, sync.Record{"id": "c2", "name": "Z"}))
	// повтор вставки из очереди не ломает синхронизацию
	require.NoError(t, c.Insert(ctx, s, table, sync.Record{"id": "c1", "name": "A"}))

	require.NoError(t, c.Update(ctx, s, table, sync.Record{"name": "B"}, "id", "c1"))

	rows, err := c.SelectAll(ctx, s, table)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c1", rows[0]["id"])
	assert.Equal(t, "B", rows[0]["name"])

	rows, err = c.SelectEq(ctx, s, table, "id", "c2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Z", rows[0]["name"])

	require.NoError(t, c.Delete(ctx, s, table, "id", "c2"))
	rows, err = c.SelectAll(ctx, s, table)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c1", rows[0]["id"])
}

func TestGateway_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	c := newRemote(newGateway(t), testAPIKey)
	anna := login(t, c, "anna")
	bob := login(t, c, "bob")

	require.NoError(t, c.Insert(ctx, anna, sync.TableCustomers, sync.Record{"id": "c1", "name": "A"}))

	rows, err := c.SelectAll(ctx, bob, sync.TableCustomers)
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = c.Insert(ctx, bob, sync.TableCustomers, sync.Record{"id": "c1", "name": "B"})
	requireStatus(t, err, http.StatusConflict, true)
}

func TestGateway_ErrorClassification(t *testing.T) {
	ctx := context.Background()
	baseURL := newGateway(t)
	c := newRemote(baseURL, testAPIKey)
	s := login(t, c, "anna")

	t.Run("login taken", func(t *testing.T) {
		requireStatus(t, c.Signup(ctx, "anna", "secret123"), http.StatusConflict, true)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := c.Login(ctx, "anna", "wrongpass1")
		requireStatus(t, err, http.StatusBadRequest, true)
	})

	t.Run("expired token is transient", func(t *testing.T) {
		stale := s
		stale.AccessToken = "not-a-token"
		_, err := c.SelectAll(ctx, stale, sync.TableCustomers)
		requireStatus(t, err, http.StatusUnauthorized, false)
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := newRemote(baseURL, "").SelectAll(ctx, s, sync.TableCustomers)
		requireStatus(t, err, http.StatusUnauthorized, false)
	})

	t.Run("unknown column", func(t *testing.T) {
		err := c.Insert(ctx, s, sync.TableCustomers, sync.Record{"id": "c9", "color": "red"})
		requireStatus(t, err, http.StatusBadRequest, true)
	})

	t.Run("table missing on server", func(t *testing.T) {
		_, err := c.SelectAll(ctx, s, sync.TableLoans)
		requireStatus(t, err, http.StatusNotFound, true)
	})
}
