// Пакет identity — контракт провайдера идентификации.
// Провайдер выдаёт сессии, сообщает об изменениях состояния аутентификации
// через слушателей и ничего не знает о ролях.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/vixio/admin-module/internal/domain/model"
)

// Event — тип изменения состояния аутентификации.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Listener получает событие и новую сессию (nil после выхода).
// Провайдер может вызывать слушателя, удерживая свою внутреннюю блокировку,
// поэтому слушатель не должен синхронно вызывать методы провайдера.
type Listener func(event Event, session *model.Session)

// Subscription — регистрация слушателя.
type Subscription interface {
	Unsubscribe()
}

// SignUpOptions — параметры регистрации.
type SignUpOptions struct {
	// FullName — отображаемое имя нового пользователя
	FullName string
	// RedirectTo — куда вернуть пользователя после подтверждения email
	RedirectTo string
}

// Provider — внешний провайдер идентификации.
type Provider interface {
	// SignInWithPassword аутентифицирует по email и паролю.
	// Ошибка провайдера возвращается как *AuthError.
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	// SignUp регистрирует пользователя. Роли не назначаются.
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) error
	// SignOut завершает сессию у провайдера.
	SignOut(ctx context.Context) error
	// GetSession возвращает текущую сессию или nil.
	GetSession(ctx context.Context) (*model.Session, error)
	// OnAuthStateChange регистрирует слушателя изменений.
	OnAuthStateChange(l Listener) Subscription
}

// ErrUserExists — пользователь с таким email уже зарегистрирован.
var ErrUserExists = errors.New("пользователь уже существует")

// AuthError — ошибка провайдера, передаётся вызывающему без изменений.
type AuthError struct {
	// Status — HTTP статус ответа провайдера
	Status int
	// Code — код ошибки провайдера (например, invalid_grant)
	Code string
	// Message — описание ошибки от провайдера
	Message string
}

// Error реализует интерфейс error.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// AsAuthError извлекает *AuthError из цепочки ошибок.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
