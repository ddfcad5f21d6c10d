package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/presenceguard/presenceguard/internal/api/models"
	"github.com/presenceguard/presenceguard/internal/auth"
)

// principalKey is the context key for the authenticated principal.
type principalKey struct{}

// principal is the authenticated subject extracted from a bearer token.
type principal struct {
	ID   string
	Role string
}

// Auth creates authentication middleware that validates JWT bearer tokens.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract bearer token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			// Check for Bearer prefix (case-insensitive)
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := authHeader[len(bearerPrefix):]
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			// Validate the token
			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			// Add the principal to context
			ctx := context.WithValue(r.Context(), principalKey{}, principal{
				ID:   claims.SubjectID,
				Role: claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole creates middleware that rejects authenticated principals
// whose role claim differs from the required one. Must run after Auth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserRole(r.Context()) != role {
				traceID := GetRequestID(r.Context())
				problem := models.NewForbidden(traceID, role+" role required")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetUserID retrieves the authenticated principal's ID from the context.
// Returns an empty string if not authenticated.
func GetUserID(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(principal); ok {
		return p.ID
	}
	return ""
}

// GetUserRole retrieves the authenticated principal's role from the context.
// Returns an empty string if not authenticated.
func GetUserRole(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(principal); ok {
		return p.Role
	}
	return ""
}
