package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/patrickmn/go-cache"
)

// KeycloakConfig конфигурация для Keycloak
type KeycloakConfig struct {
	ServerURL string
	Realm     string
	ClientID  string
}

// KeycloakClaims представляет собой структуру claims из токена Keycloak
type KeycloakClaims struct {
	UserID      string `json:"sub"`
	Username    string `json:"preferred_username"`
	Email       string `json:"email"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

// tokenVerifier проверка подписи и срока токена
type tokenVerifier func(ctx context.Context, token string) (*KeycloakClaims, time.Time, error)

// KeycloakClient проверяет bearer-токены Keycloak и реализует AuthPort.
// Права оператора берутся из ролей realm и ролей клиента
type KeycloakClient struct {
	verify     tokenVerifier
	tokenCache *cache.Cache
	clientID   string
}

// NewKeycloakClient создает новый клиент Keycloak
func NewKeycloakClient(ctx context.Context, cfg KeycloakConfig) (*KeycloakClient, error) {
	providerURL := fmt.Sprintf("%s/realms/%s", cfg.ServerURL, cfg.Realm)

	provider, err := oidc.NewProvider(ctx, providerURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания OIDC провайдера: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: true,
	})

	verify := func(ctx context.Context, token string) (*KeycloakClaims, time.Time, error) {
		idToken, err := verifier.Verify(ctx, token)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("ошибка верификации токена: %w", err)
		}
		var claims KeycloakClaims
		if err := idToken.Claims(&claims); err != nil {
			return nil, time.Time{}, fmt.Errorf("ошибка извлечения claims: %w", err)
		}
		return &claims, idToken.Expiry, nil
	}

	return newKeycloakClient(verify, cfg.ClientID), nil
}

func newKeycloakClient(verify tokenVerifier, clientID string) *KeycloakClient {
	return &KeycloakClient{
		verify:     verify,
		tokenCache: cache.New(5*time.Minute, 10*time.Minute),
		clientID:   clientID,
	}
}

// ValidateToken проверяет JWT токен и возвращает claims
func (k *KeycloakClient) ValidateToken(ctx context.Context, tokenString string) (*KeycloakClaims, error) {
	if cachedClaims, found := k.tokenCache.Get(tokenString); found {
		return cachedClaims.(*KeycloakClaims), nil
	}

	claims, expiry, err := k.verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if expiresIn := time.Until(expiry); expiresIn > 0 {
		k.tokenCache.Set(tokenString, claims, expiresIn)
	}

	return claims, nil
}

// Authenticate реализует AuthPort
func (k *KeycloakClient) Authenticate(ctx context.Context, token string) (*interfaces.Principal, error) {
	claims, err := k.ValidateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrUnauthorized, err)
	}

	roles := append([]string{}, claims.RealmAccess.Roles...)
	if clientRoles, exists := claims.ResourceAccess[k.clientID]; exists {
		roles = append(roles, clientRoles.Roles...)
	}

	return &interfaces.Principal{
		Subject:     claims.UserID,
		Username:    claims.Username,
		Roles:       roles,
		Permissions: roles,
	}, nil
}

// HasPermission в Keycloak право выдается ролью с тем же именем
func (k *KeycloakClient) HasPermission(principal *interfaces.Principal, permission string) bool {
	if principal == nil {
		return false
	}
	for _, r := range principal.Roles {
		if r == permission || r == "admin" {
			return true
		}
	}
	return false
}
