package middleware

import (
	"context"
	"net/http"
	"strings"

	"common-grounds-backend/internal/services"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware validates the bearer session credential on every request.
// Signature checks alone are not enough: the hub of the check is the session
// table lookup inside Validate, which is what makes logout effective.
func AuthMiddleware(authService *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := authService.Validate(r.Context(), parts[1])
			if err != nil {
				respondError(w, "Invalid or expired session", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims extracts the session claims from context
func GetClaims(ctx context.Context) *services.Claims {
	claims, ok := ctx.Value(claimsKey).(*services.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserID extracts the caller's user ID from context
func GetUserID(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
