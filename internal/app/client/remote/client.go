package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"loanbook/internal/domain/sync"
)

const (
	restPrefix = "/rest/v1/"
	authPrefix = "/auth/v1/"
	healthPath = "/health"
)

// Client HTTP-клиент удаленного хранилища (PostgREST-подобный контракт)
type Client struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	apiKey    string
	userAgent string
}

var _ sync.RemoteStore = (*Client)(nil)

// Options параметры клиента
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func New(opts Options, log *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &Client{
		client:    client,
		log:       log.With(slog.String("component", "remote_store")),
		baseURL:   opts.BaseURL,
		apiKey:    opts.APIKey,
		userAgent: "Loanbook-Client/1.0",
	}
}

// HealthCheck проверяет доступность сервера
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, healthPath, "", nil, nil)
	if err != nil {
		return err
	}
	return c.parseResponse(resp, nil)
}

func (c *Client) SelectAll(ctx context.Context, s sync.Session, table sync.Table) ([]sync.Record, error) {
	return c.selectRows(ctx, s, table, nil)
}

func (c *Client) SelectEq(ctx context.Context, s sync.Session, table sync.Table, column, value string) ([]sync.Record, error) {
	return c.selectRows(ctx, s, table, eq(column, value))
}

func (c *Client) Insert(ctx context.Context, s sync.Session, table sync.Table, rec sync.Record) error {
	resp, err := c.do(ctx, http.MethodPost, restPrefix+string(table), s.AccessToken, nil, rec)
	if err != nil {
		return err
	}
	return c.parseResponse(resp, nil)
}

func (c *Client) Update(ctx context.Context, s sync.Session, table sync.Table, patch sync.Record, column, value string) error {
	resp, err := c.do(ctx, http.MethodPatch, restPrefix+string(table), s.AccessToken, eq(column, value), patch)
	if err != nil {
		return err
	}
	return c.parseResponse(resp, nil)
}

func (c *Client) Delete(ctx context.Context, s sync.Session, table sync.Table, column, value string) error {
	resp, err := c.do(ctx, http.MethodDelete, restPrefix+string(table), s.AccessToken, eq(column, value), nil)
	if err != nil {
		return err
	}
	return c.parseResponse(resp, nil)
}

func (c *Client) selectRows(ctx context.Context, s sync.Session, table sync.Table, filter url.Values) ([]sync.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, restPrefix+string(table), s.AccessToken, filter, nil)
	if err != nil {
		return nil, err
	}

	var rows []sync.Record
	if err := c.parseResponse(resp, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Credentials логин и пароль
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	UserID      int64     `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login получает токен доступа
func (c *Client) Login(ctx context.Context, login, password string) (sync.Session, error) {
	resp, err := c.do(ctx, http.MethodPost, authPrefix+"token", "", nil, Credentials{Login: login, Password: password})
	if err != nil {
		return sync.Session{}, err
	}

	var token tokenResponse
	if err := c.parseResponse(resp, &token); err != nil {
		return sync.Session{}, err
	}

	return sync.Session{
		UserID:      token.UserID,
		Login:       login,
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt,
	}, nil
}

// Signup регистрирует пользователя
func (c *Client) Signup(ctx context.Context, login, password string) error {
	resp, err := c.do(ctx, http.MethodPost, authPrefix+"signup", "", nil, Credentials{Login: login, Password: password})
	if err != nil {
		return err
	}
	return c.parseResponse(resp, nil)
}

func eq(column, value string) url.Values {
	return url.Values{column: []string{"eq." + value}}
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: ошибка маршалинга тела запроса: %v", sync.ErrInvalidPayload, err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, &sync.RemoteError{Permanent: true, Err: fmt.Errorf("ошибка создания запроса: %w", err)}
	}

	// Добавляем заголовки
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.log.Debug("Отправка запроса",
		"method", method,
		"url", req.URL.String(),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}

	return resp, nil
}

func (c *Client) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(fmt.Errorf("ошибка чтения ответа: %w", err))
	}

	c.log.Debug("Получен ответ",
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	if resp.StatusCode >= 400 {
		return &sync.RemoteError{
			Status:    resp.StatusCode,
			Message:   errorMessage(body),
			Permanent: IsPermanentStatus(resp.StatusCode),
		}
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return &sync.RemoteError{
				Status:    resp.StatusCode,
				Message:   "ошибка парсинга ответа",
				Permanent: false,
				Err:       err,
			}
		}
	}

	return nil
}

func errorMessage(body []byte) string {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		for _, s := range []string{errResp.Message, errResp.Error, errResp.Detail, errResp.Title} {
			if s != "" {
				return s
			}
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// IsPermanentStatus повтор запроса с таким статусом не поможет.
// 401 не постоянная ошибка: после повторного входа запрос пройдет.
func IsPermanentStatus(status int) bool {
	switch {
	case status < 400:
		return false
	case status == http.StatusUnauthorized,
		status == http.StatusRequestTimeout,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests:
		return false
	case status >= 500:
		return false
	default:
		return true
	}
}

func classifyTransport(err error) error {
	var re *sync.RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &sync.RemoteError{Err: err}
}
