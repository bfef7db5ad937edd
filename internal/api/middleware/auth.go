// auth.go — JWT middleware для аутентификации и авторизации API Admin Module.
// Подпись и срок действия токена проверяет keycloak.TokenVerifier,
// роли берутся из таблицы user_roles через RoleResolver.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/vixio/admin-module/internal/api/errors"
	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/keycloak"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — полные извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// unauthenticatedMessage — единый ответ для отсутствующего, невалидного токена
// и для пользователя без ролей. Клиент не может отличить эти случаи.
const unauthenticatedMessage = "Требуется аутентификация"

// AuthClaims — субъект запроса: проверенный токен и роли из user_roles.
type AuthClaims struct {
	// Subject — sub из JWT (Keycloak user ID).
	Subject string
	// Email — email из JWT.
	Email string
	// Name — отображаемое имя.
	Name string
	// PreferredUsername — preferred_username из JWT.
	PreferredUsername string
	// Roles — роли пользователя (не пустые).
	Roles rbac.RoleSet
}

// Actor — строка, под которой действие пользователя записывается в аудит.
func (c *AuthClaims) Actor() string {
	if c.Email != "" {
		return c.Email
	}
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

// tokenVerifier — проверка access token.
type tokenVerifier interface {
	Verify(ctx context.Context, token string) (*keycloak.Claims, error)
}

// roleResolver — роли пользователя по его ID.
type roleResolver interface {
	Resolve(ctx context.Context, userID string) rbac.RoleSet
}

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	verifier tokenVerifier
	resolver roleResolver
	logger   *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
func NewJWTAuth(verifier tokenVerifier, resolver roleResolver, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		verifier: verifier,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, проверяет его, разрешает роли и помещает
// AuthClaims в контекст. Пользователь без ролей получает тот же 401,
// что и запрос без токена.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, reason := bearerToken(r)
			if tokenString == "" {
				j.reject(w, r, reason)
				return
			}

			verified, err := j.verifier.Verify(r.Context(), tokenString)
			if err != nil {
				j.reject(w, r, err.Error())
				return
			}

			roles := j.resolver.Resolve(r.Context(), verified.Subject)
			if roles.IsEmpty() {
				j.reject(w, r, "у пользователя нет ролей")
				return
			}

			claims := &AuthClaims{
				Subject:           verified.Subject,
				Email:             verified.Email,
				Name:              verified.Name,
				PreferredUsername: verified.PreferredUsername,
				Roles:             roles,
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (j *JWTAuth) reject(w http.ResponseWriter, r *http.Request, reason string) {
	j.logger.Debug("Запрос к API отклонён",
		slog.String("reason", reason),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)
	apierrors.Unauthorized(w, unauthenticatedMessage)
}

// bearerToken извлекает токен из заголовка Authorization.
// При ошибке возвращает пустой токен и причину для лога.
func bearerToken(r *http.Request) (token, reason string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "отсутствует заголовок Authorization"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "неверный формат Authorization"
	}
	if parts[1] == "" {
		return "", "пустой Bearer token"
	}
	return parts[1], ""
}

// --- RBAC middleware helpers ---

// RequireRole возвращает middleware, пропускающий пользователей, чей набор
// ролей удовлетворяет required (admin > editor > visualizador).
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(required rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, unauthenticatedMessage)
				return
			}

			if !claims.Roles.Satisfies(required) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", required))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если claims не найдены.
func SubjectFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Subject
}
