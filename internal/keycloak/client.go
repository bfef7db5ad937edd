// Пакет keycloak — интеграция с Keycloak: Admin REST API, OIDC token endpoint,
// проверка access token и реализация identity.Provider.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vixio/admin-module/internal/identity"
)

// ErrUserNotFound — пользователя с таким ID нет в realm.
var ErrUserNotFound = errors.New("пользователь Keycloak не найден")

// tokenLeeway — запас до истечения service token, после которого токен перевыпускается.
const tokenLeeway = 30 * time.Second

// maxErrorBody — сколько байт тела ошибки попадает в текст ошибки.
const maxErrorBody = 512

// APIError — ответ Admin REST API с неожиданным статусом.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: Keycloak ответил %d: %s", e.Op, e.Status, e.Body)
}

// serviceToken — закэшированный токен service account.
type serviceToken struct {
	value   string
	expires time.Time
}

func (t serviceToken) usableAt(now time.Time) bool {
	return t.value != "" && now.Add(tokenLeeway).Before(t.expires)
}

// Client — клиент Keycloak Admin REST API от имени service account
// (Client Credentials flow).
type Client struct {
	realmURL     string // {base}/realms/{realm}
	adminURL     string // {base}/admin/realms/{realm}
	clientID     string
	clientSecret string

	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	token serviceToken
}

// New создаёт клиент Admin REST API. httpClient может нести TLS конфигурацию;
// nil означает клиент с таймаутом 30s.
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimRight(baseURL, "/")
	realm = url.PathEscape(realm)

	return &Client{
		realmURL:     base + "/realms/" + realm,
		adminURL:     base + "/admin/realms/" + realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "keycloak_client")),
		now:          time.Now,
	}
}

// bearer возвращает действующий service token, при необходимости перевыпуская его.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token.usableAt(now) {
		return c.token.value, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.realmURL+"/protocol/openid-connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("запрос service token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var issued serviceTokenResponse
	if _, err := c.send(req, "service token", http.StatusOK, &issued); err != nil {
		return "", err
	}
	if issued.AccessToken == "" {
		return "", errors.New("service token: пустой access_token")
	}

	c.token = serviceToken{
		value:   issued.AccessToken,
		expires: now.Add(time.Duration(issued.ExpiresIn) * time.Second),
	}
	c.logger.Debug("Service token обновлён", slog.Time("expires_at", c.token.expires))
	return c.token.value, nil
}

// send выполняет запрос и при ожидаемом статусе декодирует JSON в out (если out не nil).
func (c *Client) send(req *http.Request, op string, want int, out any) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp, &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("%s: разбор ответа: %w", op, err)
		}
	}
	return resp, nil
}

// admin выполняет авторизованный запрос к Admin REST API.
// rel — путь относительно realm с опциональной query-строкой.
func (c *Client) admin(ctx context.Context, op, method, rel string, in any, want int, out any) (*http.Response, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: сериализация: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.adminURL+rel, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, op, want, out)
}

// statusOf возвращает HTTP статус из APIError или 0.
func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// ListUsers возвращает страницу пользователей realm. Непустой query ищет
// по username, email и имени.
func (c *Client) ListUsers(ctx context.Context, query string, first, max int) ([]KeycloakUser, error) {
	q := url.Values{}
	q.Set("first", strconv.Itoa(first))
	q.Set("max", strconv.Itoa(max))
	if query != "" {
		q.Set("search", query)
	}

	var users []KeycloakUser
	if _, err := c.admin(ctx, "ListUsers", http.MethodGet, "/users?"+q.Encode(), nil, http.StatusOK, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers возвращает число пользователей realm.
func (c *Client) CountUsers(ctx context.Context) (int, error) {
	var n int
	if _, err := c.admin(ctx, "CountUsers", http.MethodGet, "/users/count", nil, http.StatusOK, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetUser возвращает пользователя по ID.
func (c *Client) GetUser(ctx context.Context, id string) (*KeycloakUser, error) {
	var user KeycloakUser
	_, err := c.admin(ctx, "GetUser", http.MethodGet, "/users/"+url.PathEscape(id), nil, http.StatusOK, &user)
	if statusOf(err) == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser заводит пользователя с постоянным паролем и возвращает его ID.
// Занятый email даёт identity.ErrUserExists.
func (c *Client) CreateUser(ctx context.Context, email, password, fullName string) (string, error) {
	first, last := splitFullName(fullName)
	in := userCreateRequest{
		Username:  email,
		Email:     email,
		FirstName: first,
		LastName:  last,
		Enabled:   true,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: password},
		},
	}

	resp, err := c.admin(ctx, "CreateUser", http.MethodPost, "/users", in, http.StatusCreated, nil)
	if statusOf(err) == http.StatusConflict {
		return "", identity.ErrUserExists
	}
	if err != nil {
		return "", err
	}

	// Location: .../users/{id}
	id := path.Base(resp.Header.Get("Location"))
	if id == "" || id == "." || id == "/" || id == "users" {
		return "", fmt.Errorf("CreateUser: в ответе нет ID пользователя (Location %q)", resp.Header.Get("Location"))
	}
	return id, nil
}

// ExecuteActionsEmail отправляет письмо с обязательными действиями
// (по умолчанию VERIFY_EMAIL). redirectURI должен принадлежать клиенту clientID.
func (c *Client) ExecuteActionsEmail(ctx context.Context, userID, clientID, redirectURI string, actions ...string) error {
	if len(actions) == 0 {
		actions = []string{"VERIFY_EMAIL"}
	}

	rel := "/users/" + url.PathEscape(userID) + "/execute-actions-email"
	if redirectURI != "" {
		q := url.Values{}
		q.Set("client_id", clientID)
		q.Set("redirect_uri", redirectURI)
		rel += "?" + q.Encode()
	}

	_, err := c.admin(ctx, "ExecuteActionsEmail", http.MethodPut, rel, actions, http.StatusNoContent, nil)
	return err
}

// DeleteUser удаляет пользователя. Используется для отката регистрации.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	_, err := c.admin(ctx, "DeleteUser", http.MethodDelete, "/users/"+url.PathEscape(userID), nil, http.StatusNoContent, nil)
	return err
}

func splitFullName(fullName string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(fullName), " ")
	return first, strings.TrimSpace(last)
}

// RealmInfo возвращает краткое описание realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	var realm RealmRepresentation
	if _, err := c.admin(ctx, "RealmInfo", http.MethodGet, "", nil, http.StatusOK, &realm); err != nil {
		return nil, err
	}
	return &realm, nil
}

// CheckReady реализует handlers.ReadinessChecker: ok при включённом realm,
// degraded при выключенном, fail при недоступности Keycloak.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	realm, err := c.RealmInfo(ctx)
	switch {
	case err != nil:
		return "fail", "Keycloak недоступен: " + err.Error()
	case !realm.Enabled:
		return "degraded", "realm " + realm.Realm + " выключен"
	default:
		return "ok", "realm " + realm.Realm + " доступен"
	}
}
