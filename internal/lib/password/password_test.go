package password_test

import (
	"testing"

	"jwtauth/internal/lib/password"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_HashAndVerify(t *testing.T) {
	hasher := password.New(bcrypt.MinCost)
	pass := gofakeit.Password(true, true, true, true, false, 12)

	hash, err := hasher.Hash(pass)
	require.NoError(t, err)

	ok, err := hasher.Verify(hash, pass)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify(hash, pass+"x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcrypt_BrokenHash(t *testing.T) {
	hasher := password.New(bcrypt.MinCost)

	ok, err := hasher.Verify([]byte("short"), "anything")
	require.Error(t, err)
	assert.False(t, ok)
}
