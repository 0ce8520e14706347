package models

import "time"

// SigningKey is an RSA key pair used to sign access tokens.
// PrivateKey holds PKCS#1 DER bytes, PublicKey holds PKIX DER bytes.
type SigningKey struct {
	KeyID      string
	PrivateKey []byte
	PublicKey  []byte
	Active     bool
	CreatedAt  time.Time
}
