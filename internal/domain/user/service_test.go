package user

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

// MockRepository is a mock implementation of the Repository interface for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, login, passwordHash string) (int64, error) {
	args := m.Called(ctx, login, passwordHash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) FindByLogin(ctx context.Context, login string) (User, error) {
	args := m.Called(ctx, login)
	return args.Get(0).(User), args.Error(1)
}

func newService(repo Repository) *Service {
	return NewService(repo, NewCredentialsValidator(), slog.Default())
}

func TestService_Register(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newService(mockRepo)

	password := "secret123"
	mockRepo.On("Create", mock.Anything, "anna", mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	})).Return(int64(42), nil)

	id, err := service.Register(context.Background(), "anna", password)

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	mockRepo.AssertExpectations(t)
}

func TestService_Register_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		login    string
		password string
	}{
		{name: "short login", login: "ab", password: "secret123"},
		{name: "bad login char", login: "an na", password: "secret123"},
		{name: "short password", login: "anna", password: "abc1"},
		{name: "no digit", login: "anna", password: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			service := newService(mockRepo)

			_, err := service.Register(context.Background(), tt.login, tt.password)

			assert.ErrorIs(t, err, ErrInvalidInput)
			mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_Register_LoginTaken(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newService(mockRepo)
	mockRepo.On("Create", mock.Anything, "anna", mock.AnythingOfType("string")).Return(int64(0), ErrLoginTaken)

	_, err := service.Register(context.Background(), "anna", "secret123")

	assert.ErrorIs(t, err, ErrLoginTaken)
	mockRepo.AssertExpectations(t)
}

func TestService_Authenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := User{ID: 7, Login: "anna", Password: string(hash)}

	tests := []struct {
		name     string
		login    string
		password string
		found    User
		findErr  error
		wantErr  error
	}{
		{name: "success", login: "anna", password: "secret123", found: stored},
		{name: "wrong password", login: "anna", password: "secret124", found: stored, wantErr: ErrInvalidAuth},
		{name: "unknown login", login: "boris", password: "secret123", findErr: ErrNotFound, wantErr: ErrInvalidAuth},
		{name: "storage failure", login: "anna", password: "secret123", findErr: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			service := newService(mockRepo)
			mockRepo.On("FindByLogin", mock.Anything, tt.login).Return(tt.found, tt.findErr)

			u, err := service.Authenticate(context.Background(), tt.login, tt.password)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.findErr != nil:
				assert.ErrorIs(t, err, tt.findErr)
				assert.NotErrorIs(t, err, ErrInvalidAuth)
			default:
				require.NoError(t, err)
				assert.Equal(t, int64(7), u.ID)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestService_Authenticate_InvalidLoginSkipsLookup(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newService(mockRepo)

	_, err := service.Authenticate(context.Background(), "a", "secret123")

	assert.ErrorIs(t, err, ErrInvalidAuth)
	mockRepo.AssertNotCalled(t, "FindByLogin", mock.Anything, mock.Anything)
}
