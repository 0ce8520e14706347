// Package tokenhash derives the stored form of refresh tokens.
//
// Only Digest output is ever persisted. Lookups digest the presented
// plaintext and compare digests, never plaintexts.
package tokenhash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PlaintextSize is the number of random bytes behind a refresh token.
const PlaintextSize = 64

// Digest returns the base64 encoded sha256 of the plaintext token.
func Digest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Generate returns a new random refresh token plaintext.
func Generate() (string, error) {
	const op = "tokenhash.Generate"

	b := make([]byte, PlaintextSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return base64.StdEncoding.EncodeToString(b), nil
}
