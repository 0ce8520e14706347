package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/lib/tokenhash"
	"jwtauth/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "jwtauth.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())

	t.Cleanup(func() { _ = s.Close() })

	return s
}

type fixture struct {
	userID   int64
	mobileID int64
	webID    int64
}

func seed(t *testing.T, s *Storage) fixture {
	t.Helper()
	ctx := context.Background()

	userID, err := s.SaveUser(ctx, gofakeit.Email(), gofakeit.Name(), []byte("hash"))
	require.NoError(t, err)

	mobileID, err := s.SaveClient(ctx, "Mobile", "Mobile", "https://reading_mobile.com")
	require.NoError(t, err)

	webID, err := s.SaveClient(ctx, "Web", "Web", "https://reading_web.com")
	require.NoError(t, err)

	return fixture{userID: userID, mobileID: mobileID, webID: webID}
}

func newToken(userID, clientID int64, now time.Time) (string, models.RefreshToken) {
	plaintext, _ := tokenhash.Generate()
	return plaintext, models.RefreshToken{
		TokenHash: tokenhash.Digest(plaintext),
		UserID:    userID,
		ClientID:  clientID,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		CreatedAt: now,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUser_CaseInsensitiveWithRoles(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	email := strings.ToLower(gofakeit.Email())
	name := gofakeit.Name()

	id, err := s.SaveUser(ctx, email, name, []byte("hash"))
	require.NoError(t, err)

	_, err = s.SaveRole(ctx, "Admin", "administrators")
	require.NoError(t, err)
	_, err = s.SaveRole(ctx, "User", "regular users")
	require.NoError(t, err)

	require.NoError(t, s.AssignRole(ctx, id, "User"))
	require.NoError(t, s.AssignRole(ctx, id, "Admin"))
	require.NoError(t, s.AssignRole(ctx, id, "Admin"))

	user, err := s.User(ctx, strings.ToUpper(email))
	require.NoError(t, err)

	assert.Equal(t, id, user.ID)
	assert.Equal(t, email, user.Email)
	assert.Equal(t, name, user.FullName)
	assert.Equal(t, []byte("hash"), user.PassHash)
	assert.Equal(t, []string{"Admin", "User"}, user.RoleNames())

	byID, err := s.UserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)
}

func TestSaveUser_Duplicate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	email := strings.ToLower(gofakeit.Email())
	_, err := s.SaveUser(ctx, email, "", []byte("hash"))
	require.NoError(t, err)

	_, err = s.SaveUser(ctx, strings.ToUpper(email), "", []byte("hash"))
	require.ErrorIs(t, err, storage.ErrUserExists)
}

func TestLookups_NotFound(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.User(ctx, gofakeit.Email())
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.UserByID(ctx, 42)
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.Client(ctx, "Desktop")
	require.ErrorIs(t, err, storage.ErrClientNotFound)

	_, err = s.ClientByID(ctx, 42)
	require.ErrorIs(t, err, storage.ErrClientNotFound)

	_, err = s.SigningKey(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	_, err = s.RefreshToken(ctx, tokenhash.Digest("missing"), "Mobile")
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestAssignRole_UnknownRole(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)

	err := s.AssignRole(context.Background(), f.userID, "Nope")
	require.ErrorIs(t, err, storage.ErrRoleNotFound)
}

func TestClient(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)
	ctx := context.Background()

	c, err := s.Client(ctx, "Mobile")
	require.NoError(t, err)
	assert.Equal(t, f.mobileID, c.ID)
	assert.Equal(t, "https://reading_mobile.com", c.URL)

	_, err = s.SaveClient(ctx, "Mobile", "again", "https://example.com")
	require.ErrorIs(t, err, storage.ErrClientExists)
}

func TestSigningKeys_Rotate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.ActiveSigningKeys(ctx)
	require.ErrorIs(t, err, storage.ErrNoActiveKey)

	first := models.SigningKey{
		KeyID:      "kid-1",
		PrivateKey: []byte("priv-1"),
		PublicKey:  []byte("pub-1"),
		Active:     true,
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.SaveSigningKey(ctx, first))
	require.ErrorIs(t, s.SaveSigningKey(ctx, first), storage.ErrKeyExists)

	second := models.SigningKey{
		KeyID:      "kid-2",
		PrivateKey: []byte("priv-2"),
		PublicKey:  []byte("pub-2"),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.RotateSigningKey(ctx, second))

	active, err := s.ActiveSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "kid-2", active[0].KeyID)
	assert.Equal(t, []byte("priv-2"), active[0].PrivateKey)

	all, err := s.SigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "kid-1", all[0].KeyID)
	assert.False(t, all[0].Active)

	retired, err := s.SigningKey(ctx, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("pub-1"), retired.PublicKey)
}

func TestRefreshToken_CrossClientIsolation(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)
	ctx := context.Background()

	plaintext, tok := newToken(f.userID, f.mobileID, time.Now())
	id, err := s.SaveRefreshToken(ctx, tok)
	require.NoError(t, err)

	got, err := s.RefreshToken(ctx, tokenhash.Digest(plaintext), "Mobile")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, f.userID, got.UserID)
	assert.Equal(t, f.mobileID, got.ClientID)
	assert.False(t, got.Revoked)
	assert.Nil(t, got.RevokedAt)
	assert.True(t, tok.ExpiresAt.Equal(got.ExpiresAt))

	_, err = s.RefreshToken(ctx, tokenhash.Digest(plaintext), "Web")
	require.ErrorIs(t, err, storage.ErrTokenNotFound)

	_, err = s.UserRefreshToken(ctx, tokenhash.Digest(plaintext), "Mobile", f.userID+1)
	require.ErrorIs(t, err, storage.ErrTokenNotFound)

	_, err = s.UserRefreshToken(ctx, tokenhash.Digest(plaintext), "Mobile", f.userID)
	require.NoError(t, err)
}

func TestSaveRefreshToken_DuplicateDigest(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)
	ctx := context.Background()

	_, tok := newToken(f.userID, f.mobileID, time.Now())
	_, err := s.SaveRefreshToken(ctx, tok)
	require.NoError(t, err)

	_, err = s.SaveRefreshToken(ctx, tok)
	require.ErrorIs(t, err, storage.ErrTokenExists)
}

func TestRotateRefreshToken(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)
	ctx := context.Background()
	now := time.Now()

	oldPlain, old := newToken(f.userID, f.mobileID, now)
	oldID, err := s.SaveRefreshToken(ctx, old)
	require.NoError(t, err)

	newPlain, next := newToken(f.userID, f.mobileID, now)
	newID, err := s.RotateRefreshToken(ctx, oldID, now, next)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	revoked, err := s.RefreshToken(ctx, tokenhash.Digest(oldPlain), "Mobile")
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)
	require.NotNil(t, revoked.RevokedAt)
	assert.True(t, now.Equal(*revoked.RevokedAt))

	fresh, err := s.RefreshToken(ctx, tokenhash.Digest(newPlain), "Mobile")
	require.NoError(t, err)
	assert.False(t, fresh.Revoked)

	// a second rotation of the same row must not insert anything
	_, again := newToken(f.userID, f.mobileID, now)
	_, err = s.RotateRefreshToken(ctx, oldID, now, again)
	require.ErrorIs(t, err, storage.ErrTokenRevoked)

	_, err = s.RefreshToken(ctx, again.TokenHash, "Mobile")
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestRotateRefreshToken_Concurrent(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)
	ctx := context.Background()
	now := time.Now()

	_, old := newToken(f.userID, f.mobileID, now)
	oldID, err := s.SaveRefreshToken(ctx, old)
	require.NoError(t, err)

	const callers = 2
	var (
		wg   sync.WaitGroup
		errs = make([]error, callers)
	)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, next := newToken(f.userID, f.mobileID, now)
			_, errs[i] = s.RotateRefreshToken(ctx, oldID, now, next)
		}()
	}
	wg.Wait()

	var succeeded, revoked int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, storage.ErrTokenRevoked):
			revoked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, revoked)

	var active int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM refresh_tokens WHERE revoked = 0").Scan(&active))
	assert.Equal(t, 1, active)
}

func TestRevokeRefreshToken_AllForUser(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)
	ctx := context.Background()

	earlier := time.Now().Add(-time.Hour).Truncate(time.Second)
	now := time.Now().Truncate(time.Second)

	_, presented := newToken(f.userID, f.mobileID, earlier)
	presentedID, err := s.SaveRefreshToken(ctx, presented)
	require.NoError(t, err)

	webPlain, web := newToken(f.userID, f.webID, earlier)
	_, err = s.SaveRefreshToken(ctx, web)
	require.NoError(t, err)

	oldPlain, old := newToken(f.userID, f.webID, earlier)
	oldID, err := s.SaveRefreshToken(ctx, old)
	require.NoError(t, err)
	require.NoError(t, s.RevokeRefreshToken(ctx, oldID, f.userID, false, earlier))

	otherUser, err := s.SaveUser(ctx, gofakeit.Email(), "", []byte("hash"))
	require.NoError(t, err)
	otherPlain, other := newToken(otherUser, f.mobileID, earlier)
	_, err = s.SaveRefreshToken(ctx, other)
	require.NoError(t, err)

	require.NoError(t, s.RevokeRefreshToken(ctx, presentedID, f.userID, true, now))

	got, err := s.RefreshToken(ctx, tokenhash.Digest(webPlain), "Web")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.True(t, now.Equal(*got.RevokedAt))

	got, err = s.RefreshToken(ctx, tokenhash.Digest(oldPlain), "Web")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.True(t, earlier.Equal(*got.RevokedAt), "already revoked row keeps its timestamp")

	got, err = s.RefreshToken(ctx, tokenhash.Digest(otherPlain), "Mobile")
	require.NoError(t, err)
	assert.False(t, got.Revoked)

	err = s.RevokeRefreshToken(ctx, presentedID, f.userID, false, now)
	require.ErrorIs(t, err, storage.ErrTokenRevoked)
}

func TestRevokeUserRefreshTokens(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)
	ctx := context.Background()

	for _, clientID := range []int64{f.mobileID, f.webID, f.webID} {
		_, tok := newToken(f.userID, clientID, time.Now())
		_, err := s.SaveRefreshToken(ctx, tok)
		require.NoError(t, err)
	}

	n, err := s.RevokeUserRefreshTokens(ctx, f.userID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = s.RevokeUserRefreshTokens(ctx, f.userID, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefreshTokens_CascadeWithOwners(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)
	ctx := context.Background()

	_, mobile := newToken(f.userID, f.mobileID, time.Now())
	_, err := s.SaveRefreshToken(ctx, mobile)
	require.NoError(t, err)

	_, web := newToken(f.userID, f.webID, time.Now())
	_, err = s.SaveRefreshToken(ctx, web)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", f.webID)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM refresh_tokens").Scan(&count))
	assert.Equal(t, 1, count)

	_, err = s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", f.userID)
	require.NoError(t, err)

	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM refresh_tokens").Scan(&count))
	assert.Zero(t, count)
}

func TestSaveRefreshToken_UnknownOwner(t *testing.T) {
	s := newTestStorage(t)
	f := seed(t, s)

	_, tok := newToken(f.userID+100, f.mobileID, time.Now())
	_, err := s.SaveRefreshToken(context.Background(), tok)
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Storage{db: db}, mock
}

func TestRotateRefreshToken_RollsBackOnInsertError(t *testing.T) {
	s, mock := newMockStorage(t)
	ioErr := errors.New("disk I/O error")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens SET revoked = 1").
		WithArgs(sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnError(ioErr)
	mock.ExpectRollback()

	_, err := s.RotateRefreshToken(context.Background(), 7, time.Now(), models.RefreshToken{TokenHash: "h"})
	require.ErrorIs(t, err, ioErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeRefreshToken_ZeroRowsRollsBack(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens SET revoked = 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RevokeRefreshToken(context.Background(), 7, 1, true, time.Now())
	require.ErrorIs(t, err, storage.ErrTokenRevoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUser_QueryError(t *testing.T) {
	s, mock := newMockStorage(t)
	connErr := errors.New("connection refused")

	mock.ExpectQuery("SELECT id, email, full_name, pass_hash, created_at FROM users").
		WillReturnError(connErr)

	_, err := s.User(context.Background(), gofakeit.Email())
	require.ErrorIs(t, err, connErr)
	require.NotErrorIs(t, err, storage.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
