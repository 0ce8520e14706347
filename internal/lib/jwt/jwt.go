package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"jwtauth/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenTTL is the fixed lifetime of an access token.
const AccessTokenTTL = time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUnknownKey   = errors.New("unknown signing key")
)

// Key is a private signing key together with its id.
type Key struct {
	ID         string
	PrivateKey *rsa.PrivateKey
}

// KeyFunc resolves the public key for a kid found in a token header.
type KeyFunc func(kid string) (*rsa.PublicKey, error)

type accessClaims struct {
	Name   string   `json:"name,omitempty"`
	NameID string   `json:"nameid"`
	Email  string   `json:"email"`
	Roles  []string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates an RS256 access token for user scoped to client.
// The key id is written to the "kid" header.
func GenerateToken(
	user *models.User,
	client *models.Client,
	key Key,
	issuer string,
	issuedAt time.Time,
) (string, error) {
	const op = "jwt.GenerateToken"

	if key.PrivateKey == nil || key.ID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrUnknownKey)
	}

	claims := accessClaims{
		Name:   user.FullName,
		NameID: user.Email,
		Email:  user.Email,
		Roles:  user.RoleNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{client.URL},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(AccessTokenTTL)),
		},
	}
	if len(claims.Roles) == 0 {
		claims.Roles = nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.ID

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// ParseToken verifies an access token and returns its claims. The public key
// is selected by the "kid" header through keyFunc.
func ParseToken(tokenString string, issuer string, keyFunc KeyFunc) (*models.Claims, error) {
	const op = "jwt.ParseToken"

	var claims accessClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrUnknownKey
		}
		return keyFunc(kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: subject: %w", op, ErrInvalidToken)
	}

	return &models.Claims{
		UserID:   userID,
		TokenID:  claims.ID,
		FullName: claims.Name,
		Email:    claims.Email,
		Roles:    claims.Roles,
	}, nil
}
