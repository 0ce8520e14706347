package auth

import (
	"context"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/lib/jwt"

	"github.com/stretchr/testify/mock"
)

type MockUserProvider struct {
	mock.Mock
}

func (m *MockUserProvider) User(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserProvider) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockClientProvider struct {
	mock.Mock
}

func (m *MockClientProvider) Client(ctx context.Context, clientID string) (*models.Client, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClientProvider) ClientByID(ctx context.Context, id int64) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

type MockPasswordVerifier struct {
	mock.Mock
}

func (m *MockPasswordVerifier) Verify(hash []byte, password string) (bool, error) {
	args := m.Called(hash, password)
	return args.Bool(0), args.Error(1)
}

type MockKeyProvider struct {
	mock.Mock
}

func (m *MockKeyProvider) ActiveKey(ctx context.Context) (jwt.Key, error) {
	args := m.Called(ctx)
	return args.Get(0).(jwt.Key), args.Error(1)
}

type MockRefreshTokenStore struct {
	mock.Mock
}

func (m *MockRefreshTokenStore) Create(ctx context.Context, userID, clientID int64, plaintext string) (*models.RefreshToken, error) {
	args := m.Called(ctx, userID, clientID, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenStore) Lookup(ctx context.Context, plaintext, clientID string) (*models.RefreshToken, error) {
	args := m.Called(ctx, plaintext, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenStore) LookupForUser(ctx context.Context, plaintext, clientID string, userID int64) (*models.RefreshToken, error) {
	args := m.Called(ctx, plaintext, clientID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenStore) Rotate(ctx context.Context, old *models.RefreshToken, plaintext string) (*models.RefreshToken, error) {
	args := m.Called(ctx, old, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenStore) Revoke(ctx context.Context, token *models.RefreshToken, allDevices bool) error {
	args := m.Called(ctx, token, allDevices)
	return args.Error(0)
}
