package jwtmiddleware

import (
	"context"
	"net/http"
	"strings"

	security "github.com/linemk/telegram-shop/internal/jwt-new"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// NewJWTMiddleware создаёт middleware для проверки токена сессии.
func NewJWTMiddleware(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization (формат: "Bearer <token>")
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := security.ParseToken(parts[1], secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext извлекает claims сессии из контекста.
func FromContext(ctx context.Context) (security.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(security.Claims)
	return claims, ok
}
