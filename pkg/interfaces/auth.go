package interfaces

import (
	"context"
)

// Principal описывает аутентифицированного оператора синхронизации
type Principal struct {
	Subject     string
	Username    string
	Roles       []string
	Permissions []string
}

// AuthPort определяет интерфейс для проверки bearer-токенов
type AuthPort interface {
	// Authenticate проверяет токен и возвращает оператора
	Authenticate(ctx context.Context, token string) (*Principal, error)

	// HasPermission проверяет наличие права у оператора
	HasPermission(principal *Principal, permission string) bool
}
