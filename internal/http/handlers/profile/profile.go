package profile

import (
	"net/http"

	"jwtauth/internal/http/middleware/authn"
	"jwtauth/internal/lib/api/response"
)

type Response struct {
	ID       int64    `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Roles    []string `json:"roles"`
}

// New returns the caller's identity as carried by the access token.
func New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authn.FromContext(r.Context())
		if !ok {
			response.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		roles := claims.Roles
		if roles == nil {
			roles = []string{}
		}

		response.JSON(w, http.StatusOK, Response{
			ID:       claims.UserID,
			Email:    claims.Email,
			FullName: claims.FullName,
			Roles:    roles,
		})
	}
}
