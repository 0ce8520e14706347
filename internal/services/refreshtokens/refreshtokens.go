// Package refreshtokens issues, looks up and revokes refresh tokens.
// Plaintext tokens never reach storage: every call digests them first.
package refreshtokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/lib/tokenhash"
	"jwtauth/internal/storage"
)

// TTL is how long a refresh token stays usable after issuance.
const TTL = 7 * 24 * time.Hour

var (
	ErrNotFound = errors.New("refresh token not found")
	ErrRevoked  = errors.New("refresh token revoked")
)

type TokenStorage interface {
	SaveRefreshToken(ctx context.Context, token models.RefreshToken) (int64, error)
	RefreshToken(ctx context.Context, tokenHash, clientID string) (*models.RefreshToken, error)
	UserRefreshToken(ctx context.Context, tokenHash, clientID string, userID int64) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID int64, revokedAt time.Time, next models.RefreshToken) (int64, error)
	RevokeRefreshToken(ctx context.Context, id, userID int64, allForUser bool, revokedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID int64, revokedAt time.Time) (int64, error)
}

type Store struct {
	storage TokenStorage
	now     func() time.Time
}

func New(storage TokenStorage, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{storage: storage, now: now}
}

// Create stores the digest of plaintext for the (userID, clientID) pair.
func (s *Store) Create(ctx context.Context, userID, clientID int64, plaintext string) (*models.RefreshToken, error) {
	const op = "refreshtokens.Create"

	token := s.newRecord(userID, clientID, plaintext)

	id, err := s.storage.SaveRefreshToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token.ID = id

	return &token, nil
}

// Lookup finds the record for plaintext issued under the public client
// identifier. Revoked and expired records are returned as well; classifying
// them is up to the caller. Unknown tokens and tokens of another client both
// yield ErrNotFound.
func (s *Store) Lookup(ctx context.Context, plaintext, clientID string) (*models.RefreshToken, error) {
	const op = "refreshtokens.Lookup"

	token, err := s.storage.RefreshToken(ctx, tokenhash.Digest(plaintext), clientID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// LookupForUser is Lookup restricted to tokens owned by userID.
func (s *Store) LookupForUser(ctx context.Context, plaintext, clientID string, userID int64) (*models.RefreshToken, error) {
	const op = "refreshtokens.LookupForUser"

	token, err := s.storage.UserRefreshToken(ctx, tokenhash.Digest(plaintext), clientID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// Rotate revokes old and stores plaintext as its replacement for the same
// user and client. Both changes commit together or not at all; if old was
// revoked concurrently ErrRevoked is returned and nothing is stored.
func (s *Store) Rotate(ctx context.Context, old *models.RefreshToken, plaintext string) (*models.RefreshToken, error) {
	const op = "refreshtokens.Rotate"

	next := s.newRecord(old.UserID, old.ClientID, plaintext)

	id, err := s.storage.RotateRefreshToken(ctx, old.ID, next.CreatedAt, next)
	if err != nil {
		if errors.Is(err, storage.ErrTokenRevoked) {
			return nil, fmt.Errorf("%s: %w", op, ErrRevoked)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	next.ID = id

	return &next, nil
}

// Revoke marks token revoked. When allDevices is set every other active token
// of the same user is revoked in the same transaction.
func (s *Store) Revoke(ctx context.Context, token *models.RefreshToken, allDevices bool) error {
	const op = "refreshtokens.Revoke"

	err := s.storage.RevokeRefreshToken(ctx, token.ID, token.UserID, allDevices, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrTokenRevoked) {
			return fmt.Errorf("%s: %w", op, ErrRevoked)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeAllActiveForUser revokes every active token of userID regardless of
// client and returns how many were revoked.
func (s *Store) RevokeAllActiveForUser(ctx context.Context, userID int64) (int64, error) {
	const op = "refreshtokens.RevokeAllActiveForUser"

	n, err := s.storage.RevokeUserRefreshTokens(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Store) newRecord(userID, clientID int64, plaintext string) models.RefreshToken {
	now := s.now().UTC()

	return models.RefreshToken{
		TokenHash: tokenhash.Digest(plaintext),
		UserID:    userID,
		ClientID:  clientID,
		ExpiresAt: now.Add(TTL),
		CreatedAt: now,
	}
}
