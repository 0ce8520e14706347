package wellknown

import (
	"context"
	"log/slog"
	"net/http"

	"jwtauth/internal/lib/api/response"
	"jwtauth/internal/lib/jwt"
	"jwtauth/internal/lib/sl"
)

type KeySetProvider interface {
	KeySet(ctx context.Context) (jwt.JWKSet, error)
}

// JWKS publishes the public halves of all signing keys, retired ones
// included, so resource servers can verify tokens by kid.
func JWKS(log *slog.Logger, keys KeySetProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.wellknown.JWKS"

		set, err := keys.KeySet(r.Context())
		if err != nil {
			log.Error("failed to load key set", slog.String("op", op), sl.Err(err))
			response.Error(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=300")
		response.JSON(w, http.StatusOK, set)
	}
}
