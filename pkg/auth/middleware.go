package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

type principalKey struct{}

// PrincipalFromContext возвращает оператора, проверенного AuthMiddleware
func PrincipalFromContext(ctx context.Context) (*interfaces.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*interfaces.Principal)
	return p, ok
}

// WithPrincipal кладет оператора в контекст
func WithPrincipal(ctx context.Context, p *interfaces.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// AuthMiddleware промежуточное ПО для проверки bearer-токенов
func AuthMiddleware(authPort interfaces.AuthPort, logger interfaces.LoggerPort) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			// Проверяем формат токена
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			principal, err := authPort.Authenticate(r.Context(), parts[1])
			if err != nil {
				logger.WarnWithContext(r.Context(), "Invalid bearer token",
					interfaces.LogField{Key: "error", Value: err.Error()})
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequirePermission проверяет наличие права у оператора
func RequirePermission(authPort interfaces.AuthPort, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !authPort.HasPermission(principal, permission) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
