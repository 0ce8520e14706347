package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/lib/jwt"
	"jwtauth/internal/lib/sl"
	"jwtauth/internal/lib/tokenhash"
	"jwtauth/internal/services/keys"
	"jwtauth/internal/services/refreshtokens"
	"jwtauth/internal/storage"
)

type Auth struct {
	log             *slog.Logger
	userProvider    UserProvider
	clientProvider  ClientProvider
	passwords       PasswordVerifier
	keyProvider     KeyProvider
	tokens          RefreshTokenStore
	issuer          string
	now             func() time.Time
	newRefreshToken func() (string, error)
}

type UserProvider interface {
	User(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID int64) (*models.User, error)
}

type ClientProvider interface {
	Client(ctx context.Context, clientID string) (*models.Client, error)
	ClientByID(ctx context.Context, id int64) (*models.Client, error)
}

type PasswordVerifier interface {
	Verify(hash []byte, password string) (bool, error)
}

type KeyProvider interface {
	ActiveKey(ctx context.Context) (jwt.Key, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, userID, clientID int64, plaintext string) (*models.RefreshToken, error)
	Lookup(ctx context.Context, plaintext, clientID string) (*models.RefreshToken, error)
	LookupForUser(ctx context.Context, plaintext, clientID string, userID int64) (*models.RefreshToken, error)
	Rotate(ctx context.Context, old *models.RefreshToken, plaintext string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, token *models.RefreshToken, allDevices bool) error
}

var (
	ErrInvalidClient       = errors.New("invalid client")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRevokedRefreshToken = errors.New("refresh token revoked")
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	ErrAlreadyRevoked      = errors.New("refresh token already revoked")
	ErrNoActiveSigningKey  = errors.New("no active signing key")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// New returns a new instance of the Auth service.
func New(
	log *slog.Logger,
	userProvider UserProvider,
	clientProvider ClientProvider,
	passwords PasswordVerifier,
	keyProvider KeyProvider,
	tokens RefreshTokenStore,
	issuer string,
) *Auth {
	return &Auth{
		log:             log,
		userProvider:    userProvider,
		clientProvider:  clientProvider,
		passwords:       passwords,
		keyProvider:     keyProvider,
		tokens:          tokens,
		issuer:          issuer,
		now:             time.Now,
		newRefreshToken: tokenhash.Generate,
	}
}

// Login checks the user's password for the given client and issues a new
// access and refresh token pair.
//
// Unknown users and wrong passwords both fail with ErrInvalidCredentials.
func (a *Auth) Login(
	ctx context.Context,
	clientID string,
	email string,
	password string,
) (models.TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(
		slog.String("op", op),
		slog.String("clientID", clientID),
	)

	log.Info("attempting to login user")

	client, err := a.clientProvider.Client(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			log.Warn("client not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidClient)
		}
		log.Error("failed to get client", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	user, err := a.userProvider.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	ok, err := a.passwords.Verify(user.PassHash, password)
	if err != nil {
		log.Error("failed to verify password", slog.Int64("userID", user.ID), sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	if !ok {
		log.Warn("invalid password", slog.Int64("userID", user.ID))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	accessToken, err := a.issueAccessToken(ctx, user, client)
	if err != nil {
		log.Error("failed to issue access token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := a.newRefreshToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	if _, err := a.tokens.Create(ctx, user.ID, client.ID, refreshToken); err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	log.Info("user logged in successfully", slog.Int64("userID", user.ID))

	return models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh redeems a refresh token for a new pair. The presented token is
// revoked in the same transaction that stores its replacement, so it can be
// redeemed at most once.
func (a *Auth) Refresh(
	ctx context.Context,
	clientID string,
	refreshToken string,
) (models.TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(
		slog.String("op", op),
		slog.String("clientID", clientID),
	)

	log.Info("refreshing tokens")

	old, err := a.tokens.Lookup(ctx, refreshToken, clientID)
	if err != nil {
		if errors.Is(err, refreshtokens.ErrNotFound) {
			log.Warn("refresh token not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	log = log.With(slog.Int64("userID", old.UserID), slog.Int64("tokenID", old.ID))

	if old.Revoked {
		log.Warn("revoked refresh token presented, possible replay")
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrRevokedRefreshToken)
	}

	if old.Expired(a.now()) {
		log.Info("refresh token expired", slog.Time("expiresAt", old.ExpiresAt))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrExpiredRefreshToken)
	}

	user, err := a.userProvider.UserByID(ctx, old.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("token owner not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get user", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	client, err := a.clientProvider.ClientByID(ctx, old.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			log.Warn("token client not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get client", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	accessToken, err := a.issueAccessToken(ctx, user, client)
	if err != nil {
		log.Error("failed to issue access token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	newRefreshToken, err := a.newRefreshToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	if _, err := a.tokens.Rotate(ctx, old, newRefreshToken); err != nil {
		if errors.Is(err, refreshtokens.ErrRevoked) {
			log.Warn("refresh token revoked concurrently, possible replay")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrRevokedRefreshToken)
		}
		log.Error("failed to rotate refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	log.Info("tokens refreshed")

	return models.TokenPair{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

// Logout revokes a refresh token owned by userID. With allDevices every other
// active token of the user is revoked too, whatever client it belongs to.
func (a *Auth) Logout(
	ctx context.Context,
	clientID string,
	refreshToken string,
	userID int64,
	allDevices bool,
) error {
	const op = "auth.Logout"

	log := a.log.With(
		slog.String("op", op),
		slog.String("clientID", clientID),
		slog.Int64("userID", userID),
		slog.Bool("allDevices", allDevices),
	)

	log.Info("logging out")

	token, err := a.tokens.LookupForUser(ctx, refreshToken, clientID, userID)
	if err != nil {
		if errors.Is(err, refreshtokens.ErrNotFound) {
			log.Warn("refresh token not found")
			return fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	if token.Revoked {
		log.Info("refresh token already revoked")
		return fmt.Errorf("%s: %w", op, ErrAlreadyRevoked)
	}

	if err := a.tokens.Revoke(ctx, token, allDevices); err != nil {
		if errors.Is(err, refreshtokens.ErrRevoked) {
			log.Info("refresh token already revoked")
			return fmt.Errorf("%s: %w", op, ErrAlreadyRevoked)
		}
		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	log.Info("user logged out")

	return nil
}

func (a *Auth) issueAccessToken(ctx context.Context, user *models.User, client *models.Client) (string, error) {
	key, err := a.keyProvider.ActiveKey(ctx)
	if err != nil {
		if errors.Is(err, keys.ErrNoActiveKey) ||
			errors.Is(err, keys.ErrAmbiguousActiveKey) ||
			errors.Is(err, keys.ErrInvalidKey) {
			return "", fmt.Errorf("%w: %w", ErrNoActiveSigningKey, err)
		}
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	token, err := jwt.GenerateToken(user, client, key, a.issuer, a.now())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoActiveSigningKey, err)
	}

	return token, nil
}
