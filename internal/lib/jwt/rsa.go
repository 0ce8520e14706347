package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
)

// KeyBits is the modulus size of generated signing keys.
const KeyBits = 2048

// GenerateRSAKey returns a new private key together with its DER encodings:
// PKCS#1 for the private half, PKIX for the public half.
func GenerateRSAKey() (key *rsa.PrivateKey, privDER, pubDER []byte, err error) {
	const op = "jwt.GenerateRSAKey"

	key, err = rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pubDER, err = x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return key, x509.MarshalPKCS1PrivateKey(key), pubDER, nil
}

func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	const op = "jwt.ParsePrivateKey"

	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return key, nil
}

func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	const op = "jwt.ParsePublicKey"

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, errors.New("not an RSA public key"))
	}

	return rsaPub, nil
}
