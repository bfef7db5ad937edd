// Пакет model — доменные модели Admin Module.
package model

import "time"

// User — аутентифицированный субъект, выданный провайдером идентификации.
// Не хранится в БД — формируется из access token или Keycloak Admin API.
type User struct {
	// ID — стабильный идентификатор пользователя в IdP (sub)
	ID string
	// Email — адрес электронной почты
	Email string
	// FullName — отображаемое имя (может быть пустым)
	FullName string
	// CreatedAt — дата создания в Keycloak (нулевая, если неизвестна)
	CreatedAt time.Time
}

// Session — аутентифицированный контекст, выданный провайдером.
// User может быть nil: провайдер вернул сессию без пользователя.
type Session struct {
	// AccessToken — JWT access token
	AccessToken string
	// RefreshToken — refresh token (для продления и выхода)
	RefreshToken string
	// ExpiresAt — время истечения access token
	ExpiresAt time.Time
	// User — владелец сессии
	User *User
}

// IsExpired проверяет, истёк ли access token на момент now.
func (s *Session) IsExpired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !now.Before(s.ExpiresAt)
}

// UserID возвращает ID пользователя сессии или пустую строку.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// RoleBinding — привязка роли к пользователю.
// Хранится в таблице user_roles, одна строка на пару (user_id, role).
type RoleBinding struct {
	// ID — UUID записи
	ID string
	// UserID — идентификатор пользователя в Keycloak (sub)
	UserID string
	// Role — имя роли (admin, editor, visualizador)
	Role string
	// CreatedBy — кто выдал роль (email администратора)
	CreatedBy string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// AdminUser — пользователь Keycloak с ролями из user_roles.
// Используется API управления доступом.
type AdminUser struct {
	// ID — Keycloak user ID (sub)
	ID string
	// Username — имя пользователя в Keycloak
	Username string
	// Email — адрес электронной почты
	Email string
	// FullName — имя и фамилия
	FullName string
	// Enabled — активен ли аккаунт в Keycloak
	Enabled bool
	// Roles — присвоенные роли
	Roles []string
	// CreatedAt — дата создания в Keycloak
	CreatedAt time.Time
}
