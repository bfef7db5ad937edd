package keycloak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/vixio/admin-module/internal/identity"
)

// OIDCConfig — параметры UI-клиента realm (direct access grants включены).
type OIDCConfig struct {
	KeycloakURL  string
	Realm        string
	ClientID     string
	ClientSecret string // пусто для public client
	// HTTPClient — клиент с CA Keycloak; nil означает новый клиент с Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// OIDCClient выдаёт, обновляет и отзывает токены UI-клиента.
// Token endpoint обслуживает golang.org/x/oauth2, logout вызывается напрямую.
type OIDCClient struct {
	conf       *oauth2.Config
	issuer     string
	logoutURL  string
	httpClient *http.Client
}

// NewOIDCClient создаёт клиент token и logout endpoints realm.
func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	issuer := strings.TrimRight(cfg.KeycloakURL, "/") + "/realms/" + url.PathEscape(cfg.Realm)
	endpoints := issuer + "/protocol/openid-connect"

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OIDCClient{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   endpoints + "/auth",
				TokenURL:  endpoints + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"openid", "profile", "email"},
		},
		issuer:     issuer,
		logoutURL:  endpoints + "/logout",
		httpClient: httpClient,
	}
}

// Issuer возвращает URL realm.
func (c *OIDCClient) Issuer() string { return c.issuer }

// ClientID возвращает client_id UI-клиента.
func (c *OIDCClient) ClientID() string { return c.conf.ClientID }

func (c *OIDCClient) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// PasswordGrant выдаёт токены по email и паролю.
// Отказ Keycloak возвращается как *identity.AuthError.
func (c *OIDCClient) PasswordGrant(ctx context.Context, username, password string) (*oauth2.Token, error) {
	tok, err := c.conf.PasswordCredentialsToken(c.withHTTPClient(ctx), username, password)
	if err != nil {
		return nil, asAuthError("password grant", err)
	}
	return tok, nil
}

// RefreshTokens обменивает refresh token на новую пару токенов.
func (c *OIDCClient) RefreshTokens(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := c.conf.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, asAuthError("refresh", err)
	}
	return tok, nil
}

// Logout завершает сессию Keycloak, к которой относится refresh token.
func (c *OIDCClient) Logout(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("client_id", c.conf.ClientID)
	if c.conf.ClientSecret != "" {
		form.Set("client_secret", c.conf.ClientSecret)
	}
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.logoutURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации realm
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &identity.AuthError{
		Status:  resp.StatusCode,
		Code:    fmt.Sprintf("http_%d", resp.StatusCode),
		Message: strings.TrimSpace(string(body)),
	}
}

// asAuthError переводит ответ token endpoint с ошибкой в *identity.AuthError.
// Сетевые ошибки возвращаются как есть.
func asAuthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("%s: %w", op, err)
	}

	ae := &identity.AuthError{Code: re.ErrorCode, Message: re.ErrorDescription}
	if re.Response != nil {
		ae.Status = re.Response.StatusCode
	}
	if ae.Code == "" {
		ae.Code = fmt.Sprintf("http_%d", ae.Status)
		ae.Message = strings.TrimSpace(string(re.Body))
	}
	return ae
}
