// Пакет guard — защита страниц админки по состоянию session store.
// Decide — чистая функция решения; Guard — HTTP middleware поверх неё.
package guard

import (
	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/session"
)

// Decision — итог проверки доступа к защищённой странице.
type Decision int

const (
	// Loading — начальное разрешение не завершено, решение не принимается.
	Loading Decision = iota
	// Unauthenticated — пользователя нет.
	Unauthenticated
	// Unauthorized — пользователь есть, но ролей нет.
	Unauthorized
	// RoleDenied — базовый доступ есть, требуемой роли нет.
	RoleDenied
	// Authorized — все проверки пройдены.
	Authorized
)

// String возвращает имя решения (используется в логах и метриках).
func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	case RoleDenied:
		return "role_denied"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Redirects — решение ведёт на страницу входа.
// Unauthenticated и Unauthorized для клиента неразличимы.
func (d Decision) Redirects() bool {
	return d == Unauthenticated || d == Unauthorized
}

// Decide вычисляет решение для состояния store и требуемой роли.
// Пустая required означает «достаточно любой роли».
func Decide(state session.State, required rbac.Role) Decision {
	switch {
	case state.Loading:
		return Loading
	case state.User == nil:
		return Unauthenticated
	case !state.Roles.CanView():
		return Unauthorized
	case required != "" && !state.Roles.Satisfies(required):
		return RoleDenied
	default:
		return Authorized
	}
}
