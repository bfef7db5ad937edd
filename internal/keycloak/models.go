package keycloak

import (
	"strings"
	"time"

	"github.com/vixio/admin-module/internal/domain/model"
)

// KeycloakUser — UserRepresentation из Admin REST API (поля, нужные админке).
type KeycloakUser struct { //nolint:revive // имя совпадает с термином Keycloak
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Enabled       bool   `json:"enabled"`
	// CreatedAt — createdTimestamp, миллисекунды Unix.
	CreatedAt int64 `json:"createdTimestamp"`
}

func (u *KeycloakUser) CreatedAtTime() time.Time { return time.UnixMilli(u.CreatedAt) }

func (u *KeycloakUser) FullName() string {
	return strings.Join(strings.Fields(u.FirstName+" "+u.LastName), " ")
}

// ToModel возвращает доменного пользователя без ролей.
func (u *KeycloakUser) ToModel() *model.User {
	return &model.User{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName(),
		CreatedAt: u.CreatedAtTime(),
	}
}

// RealmRepresentation — GET /admin/realms/{realm}, используется readiness.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

// serviceTokenResponse — ответ token endpoint на client_credentials.
type serviceTokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type (
	// userCreateRequest — тело POST /users при регистрации.
	userCreateRequest struct {
		Username    string                     `json:"username"`
		Email       string                     `json:"email"`
		FirstName   string                     `json:"firstName,omitempty"`
		LastName    string                     `json:"lastName,omitempty"`
		Enabled     bool                       `json:"enabled"`
		Credentials []credentialRepresentation `json:"credentials,omitempty"`
	}

	credentialRepresentation struct {
		Type      string `json:"type"`
		Value     string `json:"value"` //nolint:gosec // уходит только в Keycloak
		Temporary bool   `json:"temporary"`
	}
)
