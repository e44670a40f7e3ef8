package middleware

import (
	"net/http"
	"strings"

	"github.com/nkiryanov/courier/internal/handlers/actorctx"
	"github.com/nkiryanov/courier/internal/handlers/render"
	"github.com/nkiryanov/courier/internal/models"
)

const bearerPrefix = "Bearer "

type tokenParser interface {
	// Parse access token and return the actor it was issued to
	Parse(access string) (models.Actor, error)
}

// AuthMiddleware accepts requests with valid bearer token only and puts the actor to the request context
func AuthMiddleware(tp tokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			actor, err := tp.Parse(strings.TrimSpace(header[len(bearerPrefix):]))
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := actorctx.New(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through actors with one of the roles. Must be used after AuthMiddleware
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actorctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			render.ServiceError(w, "Forbidden", http.StatusForbidden)
		})
	}
}
