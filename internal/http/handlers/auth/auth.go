package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/http/middleware/authn"
	"jwtauth/internal/lib/api/response"
	"jwtauth/internal/lib/sl"
	authsvc "jwtauth/internal/services/auth"

	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Login(ctx context.Context, clientID, email, password string) (models.TokenPair, error)
	Refresh(ctx context.Context, clientID, refreshToken string) (models.TokenPair, error)
	Logout(ctx context.Context, clientID, refreshToken string, userID int64, allDevices bool) error
}

type LoginRequest struct {
	ClientID string `json:"clientId"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	ClientID     string `json:"clientId"`
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	ClientID             string `json:"clientId"`
	RefreshToken         string `json:"refreshToken"`
	LogoutFromAllDevices bool   `json:"logoutFromAllDevices"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func Login(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.auth.Login"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req LoginRequest
		if err := response.Decode(r, &req); err != nil {
			log.Warn("failed to decode request body", sl.Err(err))
			response.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if msg := missing(
			field{"clientId", req.ClientID},
			field{"email", req.Email},
			field{"password", req.Password},
		); msg != "" {
			response.Error(w, http.StatusBadRequest, msg)
			return
		}

		pair, err := svc.Login(r.Context(), req.ClientID, req.Email, req.Password)
		if err != nil {
			writeError(w, log, err)
			return
		}

		response.JSON(w, http.StatusOK, TokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		})
	}
}

func Refresh(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.auth.Refresh"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req RefreshRequest
		if err := response.Decode(r, &req); err != nil {
			log.Warn("failed to decode request body", sl.Err(err))
			response.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if msg := missing(
			field{"clientId", req.ClientID},
			field{"refreshToken", req.RefreshToken},
		); msg != "" {
			response.Error(w, http.StatusBadRequest, msg)
			return
		}

		pair, err := svc.Refresh(r.Context(), req.ClientID, req.RefreshToken)
		if err != nil {
			writeError(w, log, err)
			return
		}

		response.JSON(w, http.StatusOK, TokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		})
	}
}

// Logout must be mounted behind the authn middleware: the user id comes from
// the verified access token, never from the request body.
func Logout(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.auth.Logout"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := authn.UserID(r.Context())
		if !ok {
			response.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req LogoutRequest
		if err := response.Decode(r, &req); err != nil {
			log.Warn("failed to decode request body", sl.Err(err))
			response.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if msg := missing(
			field{"clientId", req.ClientID},
			field{"refreshToken", req.RefreshToken},
		); msg != "" {
			response.Error(w, http.StatusBadRequest, msg)
			return
		}

		err := svc.Logout(r.Context(), req.ClientID, req.RefreshToken, userID, req.LogoutFromAllDevices)
		if err != nil {
			writeError(w, log, err)
			return
		}

		response.OK(w, "logged out")
	}
}

type field struct {
	name  string
	value string
}

func missing(fields ...field) string {
	for _, f := range fields {
		if f.value == "" {
			return "field " + f.name + " is required"
		}
	}
	return ""
}

// writeError maps service errors to responses. Client and credential
// failures share one message so callers cannot tell which part was wrong.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, authsvc.ErrInvalidClient), errors.Is(err, authsvc.ErrInvalidCredentials):
		response.Error(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, authsvc.ErrInvalidRefreshToken):
		response.Error(w, http.StatusUnauthorized, "invalid refresh token")
	case errors.Is(err, authsvc.ErrRevokedRefreshToken):
		response.Error(w, http.StatusUnauthorized, "refresh token revoked")
	case errors.Is(err, authsvc.ErrExpiredRefreshToken):
		response.Error(w, http.StatusUnauthorized, "refresh token expired")
	case errors.Is(err, authsvc.ErrAlreadyRevoked):
		response.Error(w, http.StatusBadRequest, "refresh token already revoked")
	case errors.Is(err, authsvc.ErrStorageUnavailable):
		log.Error("storage unavailable", sl.Err(err))
		response.Error(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		log.Error("internal error", sl.Err(err))
		response.Error(w, http.StatusInternalServerError, "internal error")
	}
}
