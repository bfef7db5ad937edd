package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/keycloak"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-am"

const testIssuer = "https://keycloak.test/realms/vixio"

// staticRoles — RoleResolver с фиксированными ролями.
type staticRoles map[string]rbac.RoleSet

func (s staticRoles) Resolve(_ context.Context, userID string) rbac.RoleSet {
	return s[userID]
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestJWTAuth создаёт JWTAuth с verifier на тестовом ключе.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey, roles staticRoles) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	verifier := keycloak.NewTokenVerifierWithKeyfunc(kf, testIssuer, 5*time.Second)
	return NewJWTAuth(verifier, roles, testLogger())
}

// generateUserToken генерирует JWT пользователя.
func generateUserToken(t *testing.T, key *rsa.PrivateKey, sub, email string, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": email,
		"email":              email,
		"name":               "Test User",
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"iat":                jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("не удалось подписать токен: %v", err)
	}
	return signed
}

// errorBodyOf извлекает код и сообщение ошибки из тела ответа.
func errorBodyOf(t *testing.T, rec *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело ответа не JSON: %v (%s)", err, rec.Body.String())
	}
	return body.Error.Code, body.Error.Message
}

func TestJWTAuth_Middleware(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	roles := staticRoles{
		"u-admin":  rbac.NewRoleSet(rbac.RoleAdmin),
		"u-viewer": rbac.NewRoleSet(rbac.RoleViewer),
	}
	auth := newTestJWTAuth(t, key, roles)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantSub    string
	}{
		{
			name:       "администратор",
			header:     "Bearer " + generateUserToken(t, key, "u-admin", "admin@vixio.app", false),
			wantStatus: http.StatusOK,
			wantSub:    "u-admin",
		},
		{
			name:       "bearer в нижнем регистре",
			header:     "bearer " + generateUserToken(t, key, "u-viewer", "v@vixio.app", false),
			wantStatus: http.StatusOK,
			wantSub:    "u-viewer",
		},
		{name: "нет заголовка", header: "", wantStatus: http.StatusUnauthorized},
		{name: "не Bearer", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "пустой токен", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "мусор", header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
		{
			name:       "просрочен",
			header:     "Bearer " + generateUserToken(t, key, "u-admin", "admin@vixio.app", true),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "чужой ключ",
			header:     "Bearer " + generateUserToken(t, otherKey, "u-admin", "admin@vixio.app", false),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "валидный токен без ролей",
			header:     "Bearer " + generateUserToken(t, key, "u-nobody", "n@vixio.app", false),
			wantStatus: http.StatusUnauthorized,
		},
	}

	var firstRejection string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSub string
			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotSub = SubjectFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, хотели %d", rec.Code, tt.wantStatus)
			}
			if gotSub != tt.wantSub {
				t.Errorf("sub = %q, хотели %q", gotSub, tt.wantSub)
			}
			if tt.wantStatus != http.StatusUnauthorized {
				return
			}

			// Все отказы неотличимы друг от друга
			code, msg := errorBodyOf(t, rec)
			if code != "UNAUTHORIZED" {
				t.Errorf("code = %q", code)
			}
			if firstRejection == "" {
				firstRejection = rec.Body.String()
			} else if rec.Body.String() != firstRejection {
				t.Errorf("тело отказа отличается: %q / %q (%s)", rec.Body.String(), firstRejection, msg)
			}
		})
	}
}

func TestJWTAuth_ClaimsInContext(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, staticRoles{"u-ed": rbac.NewRoleSet(rbac.RoleEditor, rbac.RoleViewer)})

	var claims *AuthClaims
	handler := auth.Middleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		claims = ClaimsFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+generateUserToken(t, key, "u-ed", "ed@vixio.app", false))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if claims == nil {
		t.Fatal("claims не помещены в контекст")
	}
	if claims.Email != "ed@vixio.app" || claims.Name != "Test User" || claims.Actor() != "ed@vixio.app" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Roles.Highest() != rbac.RoleEditor || claims.Roles.Len() != 2 {
		t.Errorf("roles = %v", claims.Roles.Strings())
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		claims     *AuthClaims
		required   rbac.Role
		wantStatus int
	}{
		{name: "нет claims", required: rbac.RoleViewer, wantStatus: http.StatusUnauthorized},
		{
			name:       "admin на admin",
			claims:     &AuthClaims{Subject: "a", Roles: rbac.NewRoleSet(rbac.RoleAdmin)},
			required:   rbac.RoleAdmin,
			wantStatus: http.StatusOK,
		},
		{
			name:       "editor на visualizador",
			claims:     &AuthClaims{Subject: "e", Roles: rbac.NewRoleSet(rbac.RoleEditor)},
			required:   rbac.RoleViewer,
			wantStatus: http.StatusOK,
		},
		{
			name:       "editor на admin",
			claims:     &AuthClaims{Subject: "e", Roles: rbac.NewRoleSet(rbac.RoleEditor)},
			required:   rbac.RoleAdmin,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "неизвестная роль у editor",
			claims:     &AuthClaims{Subject: "e", Roles: rbac.NewRoleSet(rbac.RoleEditor)},
			required:   rbac.Role("superuser"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "неизвестная роль у admin",
			claims:     &AuthClaims{Subject: "a", Roles: rbac.NewRoleSet(rbac.RoleAdmin)},
			required:   rbac.Role("superuser"),
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(tt.required)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
			if tt.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), ContextKeyClaims, tt.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, хотели %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
