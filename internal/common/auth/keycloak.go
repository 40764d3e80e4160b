// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"talento-local/internal/common/errors"
	httpclient "talento-local/internal/common/http"
	"talento-local/internal/models"

	"github.com/google/uuid"
)

// Identity is what a verified bearer token resolves to.
type Identity struct {
	UserID    uuid.UUID   `json:"userId"`
	Role      models.Role `json:"role"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func (i *Identity) Actor() models.Actor {
	return models.Actor{UserID: i.UserID, Role: i.Role}
}

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// KeycloakClient introspects access tokens against a Keycloak realm.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *httpclient.Client
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active      bool   `json:"active"`
	Scope       string `json:"scope,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	Exp         int64  `json:"exp,omitempty"`
	Iat         int64  `json:"iat,omitempty"`
	Sub         string `json:"sub,omitempty"`
	Iss         string `json:"iss,omitempty"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string, timeout time.Duration) *KeycloakClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpclient.NewClient(timeout),
	}
}

// Verify implements Verifier.
func (k *KeycloakClient) Verify(ctx context.Context, token string) (*Identity, error) {
	return k.Introspect(ctx, token)
}

// Introspect calls the realm's RFC 7662 endpoint and maps the result to an Identity.
func (k *KeycloakClient) Introspect(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, errors.NewUnauthorizedError("missing bearer token")
	}

	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(k.clientID, k.clientSecret)

	resp, err := k.httpClient.Do(ctx, req)
	if err != nil {
		return nil, errors.NewExternalServiceError("keycloak", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("introspection returned status %d: %s", resp.StatusCode, string(body))
		if k.isTransientHTTPError(resp.StatusCode) {
			return nil, errors.NewExternalServiceError("keycloak", err)
		}
		return nil, errors.NewInternalError(err)
	}

	var info TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.NewExternalServiceError("keycloak", fmt.Errorf("decode introspection response: %w", err))
	}

	return identityFromTokenInfo(&info)
}

func identityFromTokenInfo(info *TokenInfo) (*Identity, error) {
	if !info.Active {
		return nil, errors.NewUnauthorizedError("token is expired, revoked or invalid")
	}

	userID, err := uuid.Parse(info.Sub)
	if err != nil {
		return nil, errors.NewUnauthorizedError("token subject is not a user id")
	}

	role, ok := roleFromRealmRoles(info.RealmAccess.Roles)
	if !ok {
		return nil, errors.NewUnauthorizedError("token carries no marketplace role")
	}

	identity := &Identity{UserID: userID, Role: role}
	if info.Exp > 0 {
		identity.ExpiresAt = time.Unix(info.Exp, 0)
	}
	return identity, nil
}

// roleFromRealmRoles picks admin over client over worker.
func roleFromRealmRoles(roles []string) (models.Role, bool) {
	has := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		if role, err := models.ParseRole(r); err == nil {
			has[role] = true
		}
	}
	for _, role := range []models.Role{models.RoleAdmin, models.RoleClient, models.RoleWorker} {
		if has[role] {
			return role, true
		}
	}
	return "", false
}

// isTransientHTTPError returns true if the HTTP status code indicates a potentially transient error.
func (k *KeycloakClient) isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
