package models

import "time"

// RefreshToken represents a refresh token stored in the database.
// Only the digest of the plaintext token is ever persisted.
type RefreshToken struct {
	ID        int64
	TokenHash string
	UserID    int64
	ClientID  int64
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair is what a successful Login or Refresh hands back to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
