package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/http/handlers/auth"
	"jwtauth/internal/http/middleware/authn"
	"jwtauth/internal/lib/api/response"
	"jwtauth/internal/lib/logger/handlers/slogdiscard"
	authsvc "jwtauth/internal/services/auth"
	"jwtauth/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Login(ctx context.Context, clientID, email, password string) (models.TokenPair, error) {
	args := m.Called(ctx, clientID, email, password)
	return args.Get(0).(models.TokenPair), args.Error(1)
}

func (m *MockService) Refresh(ctx context.Context, clientID, refreshToken string) (models.TokenPair, error) {
	args := m.Called(ctx, clientID, refreshToken)
	return args.Get(0).(models.TokenPair), args.Error(1)
}

func (m *MockService) Logout(ctx context.Context, clientID, refreshToken string, userID int64, allDevices bool) error {
	args := m.Called(ctx, clientID, refreshToken, userID, allDevices)
	return args.Error(0)
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unknown client", authsvc.ErrInvalidClient, http.StatusUnauthorized, "invalid credentials"},
		{"bad password", authsvc.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{"storage down", fmt.Errorf("auth.Login: %w: %w", authsvc.ErrStorageUnavailable, errors.New("disk I/O error")), http.StatusServiceUnavailable, "service unavailable"},
		{"no signing key", authsvc.ErrNoActiveSigningKey, http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Login", mock.Anything, "Mobile", "a@x.com", "secret").
				Return(models.TokenPair{}, fmt.Errorf("auth.Login: %w", tt.err))

			handler := auth.Login(slogdiscard.NewDiscardLogger(), svc)

			var body response.Response
			res := testutil.PostJSON(handler, "/api/auth/login", auth.LoginRequest{
				ClientID: "Mobile", Email: "a@x.com", Password: "secret",
			}, &body)

			testutil.ExpectStatus(t, tt.status, res)
			assert.Equal(t, tt.message, body.Error)
			svc.AssertExpectations(t)
		})
	}
}

func TestLogin_Success(t *testing.T) {
	svc := new(MockService)
	svc.On("Login", mock.Anything, "Web", "a@x.com", "secret").
		Return(models.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil)

	var body auth.TokenResponse
	res := testutil.PostJSON(auth.Login(slogdiscard.NewDiscardLogger(), svc), "/api/auth/login", auth.LoginRequest{
		ClientID: "Web", Email: "a@x.com", Password: "secret",
	}, &body)

	testutil.ExpectStatus(t, http.StatusOK, res)
	assert.Equal(t, auth.TokenResponse{AccessToken: "access", RefreshToken: "refresh"}, body)
}

func TestLogin_RejectsBadBodies(t *testing.T) {
	svc := new(MockService)
	handler := auth.Login(slogdiscard.NewDiscardLogger(), svc)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty", "", "invalid request body"},
		{"malformed", `{"clientId":`, "invalid request body"},
		{"unknown field", `{"clientId":"Mobile","email":"a@x.com","password":"p","admin":true}`, "invalid request body"},
		{"missing client", `{"email":"a@x.com","password":"p"}`, "field clientId is required"},
		{"missing password", `{"clientId":"Mobile","email":"a@x.com"}`, "field password is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body response.Response
			res := testutil.Post(handler, "/api/auth/login", tt.body, &body, testutil.ContentTypeJSON())

			testutil.ExpectStatus(t, http.StatusBadRequest, res)
			assert.Equal(t, tt.message, body.Error)
		})
	}

	svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresh_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unknown token", authsvc.ErrInvalidRefreshToken, http.StatusUnauthorized, "invalid refresh token"},
		{"revoked", authsvc.ErrRevokedRefreshToken, http.StatusUnauthorized, "refresh token revoked"},
		{"expired", authsvc.ErrExpiredRefreshToken, http.StatusUnauthorized, "refresh token expired"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Refresh", mock.Anything, "Mobile", "plain").
				Return(models.TokenPair{}, fmt.Errorf("auth.Refresh: %w", tt.err))

			var body response.Response
			res := testutil.PostJSON(auth.Refresh(slogdiscard.NewDiscardLogger(), svc), "/api/auth/refresh", auth.RefreshRequest{
				ClientID: "Mobile", RefreshToken: "plain",
			}, &body)

			testutil.ExpectStatus(t, tt.status, res)
			assert.Equal(t, tt.message, body.Error)
		})
	}
}

func TestLogout(t *testing.T) {
	claims := &models.Claims{UserID: 42, Email: "a@x.com"}

	withClaims := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(authn.WithClaims(r.Context(), claims)))
		})
	}

	t.Run("revokes for the token subject", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Logout", mock.Anything, "Mobile", "plain", int64(42), true).Return(nil)

		handler := withClaims(auth.Logout(slogdiscard.NewDiscardLogger(), svc))

		var body response.Response
		res := testutil.PostJSON(handler, "/api/auth/logout", auth.LogoutRequest{
			ClientID: "Mobile", RefreshToken: "plain", LogoutFromAllDevices: true,
		}, &body)

		testutil.ExpectStatus(t, http.StatusOK, res)
		svc.AssertExpectations(t)
	})

	t.Run("already revoked", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Logout", mock.Anything, "Mobile", "plain", int64(42), false).
			Return(fmt.Errorf("auth.Logout: %w", authsvc.ErrAlreadyRevoked))

		var body response.Response
		res := testutil.PostJSON(withClaims(auth.Logout(slogdiscard.NewDiscardLogger(), svc)), "/api/auth/logout", auth.LogoutRequest{
			ClientID: "Mobile", RefreshToken: "plain",
		}, &body)

		testutil.ExpectStatus(t, http.StatusBadRequest, res)
		assert.Equal(t, "refresh token already revoked", body.Error)
	})

	t.Run("no verified caller", func(t *testing.T) {
		svc := new(MockService)

		res := testutil.PostJSON(auth.Logout(slogdiscard.NewDiscardLogger(), svc), "/api/auth/logout", auth.LogoutRequest{
			ClientID: "Mobile", RefreshToken: "plain",
		}, nil)

		testutil.ExpectStatus(t, http.StatusUnauthorized, res)
		svc.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
