// Package authn verifies access tokens on incoming requests and exposes the
// verified claims to downstream handlers.
package authn

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/lib/api/response"
	"jwtauth/internal/lib/jwt"
	"jwtauth/internal/lib/sl"
)

var ErrMissingToken = errors.New("missing bearer token")

type KeyResolver interface {
	VerificationKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

type ctxKey struct{}

// New rejects requests without a valid RS256 access token issued by issuer.
// The verification key is picked by the token's kid, so tokens signed with a
// retired key stay valid until they expire.
func New(log *slog.Logger, issuer string, keys KeyResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		log := log.With(slog.String("component", "middleware/authn"))

		fn := func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := r.Context()
			claims, err := jwt.ParseToken(raw, issuer, func(kid string) (*rsa.PublicKey, error) {
				return keys.VerificationKey(ctx, kid)
			})
			if err != nil {
				log.Debug("access token rejected", sl.Err(err))
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		}

		return http.HandlerFunc(fn)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrMissingToken
	}

	return strings.TrimSpace(token), nil
}

func WithClaims(ctx context.Context, claims *models.Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

func FromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(*models.Claims)
	return claims, ok && claims != nil
}

// UserID returns the subject of the verified access token.
func UserID(ctx context.Context) (int64, bool) {
	claims, ok := FromContext(ctx)
	if !ok {
		return 0, false
	}
	return claims.UserID, true
}
