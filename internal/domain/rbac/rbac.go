// Пакет rbac — роли Vixio Admin и производные проверки возможностей.
// Роли хранятся как независимые привязки (без вложенности на уровне данных),
// а иерархия admin ≥ editor ≥ visualizador существует только здесь,
// в функции level. Все проверки доступа в приложении идут через этот пакет.
package rbac

import (
	"fmt"
	"sort"
)

// Role — метка авторизации из закрытого перечисления.
type Role string

// Допустимые роли в порядке убывания возможностей.
const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "visualizador"
)

// roleLevel — уровень возможностей роли.
// Чем выше уровень, тем больше возможностей.
var roleLevel = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// AllRoles возвращает все допустимые роли в порядке убывания возможностей.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleEditor, RoleViewer}
}

// level возвращает уровень роли; для неизвестной роли — 0.
func level(r Role) int {
	return roleLevel[r]
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleLevel[Role(role)]
	return ok
}

// ParseRole преобразует строку в Role.
func ParseRole(s string) (Role, error) {
	if !IsValidRole(s) {
		return "", fmt.Errorf("недопустимая роль %q, допустимые: admin, editor, visualizador", s)
	}
	return Role(s), nil
}

// RoleSet — множество ролей пользователя.
// Дубликаты схлопываются, порядок не важен, неизвестные значения отбрасываются.
// Нулевое значение — пустое множество.
type RoleSet struct {
	roles map[Role]struct{}
}

// NewRoleSet создаёт множество из перечисленных ролей.
func NewRoleSet(roles ...Role) RoleSet {
	s := RoleSet{roles: make(map[Role]struct{}, len(roles))}
	for _, r := range roles {
		if level(r) == 0 {
			continue
		}
		s.roles[r] = struct{}{}
	}
	return s
}

// ParseRoleSet создаёт множество из строк (например, строк из БД или JWT).
// Недопустимые значения молча отбрасываются.
func ParseRoleSet(values []string) RoleSet {
	roles := make([]Role, 0, len(values))
	for _, v := range values {
		roles = append(roles, Role(v))
	}
	return NewRoleSet(roles...)
}

// Has проверяет принадлежность роли множеству.
func (s RoleSet) Has(r Role) bool {
	_, ok := s.roles[r]
	return ok
}

// Len возвращает количество ролей.
func (s RoleSet) Len() int {
	return len(s.roles)
}

// IsEmpty возвращает true для пустого множества.
func (s RoleSet) IsEmpty() bool {
	return len(s.roles) == 0
}

// Roles возвращает роли, отсортированные по убыванию возможностей.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s.roles))
	for r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return level(out[i]) > level(out[j])
	})
	return out
}

// Strings возвращает роли как строки (по убыванию возможностей).
func (s RoleSet) Strings() []string {
	roles := s.Roles()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// Highest возвращает роль с максимальными возможностями.
// Для пустого множества — пустая строка.
func (s RoleSet) Highest() Role {
	var highest Role
	for r := range s.roles {
		if level(r) > level(highest) {
			highest = r
		}
	}
	return highest
}

// --- Предикаты ---

// HasRole — роль r явно присвоена пользователю.
func (s RoleSet) HasRole(r Role) bool {
	return s.Has(r)
}

// IsAdmin — пользователь администратор.
func (s RoleSet) IsAdmin() bool {
	return s.Has(RoleAdmin)
}

// IsEditor — пользователь редактор или администратор.
// admin удовлетворяет любой меньшей возможности; editor не даёт прав admin.
func (s RoleSet) IsEditor() bool {
	return s.Satisfies(RoleEditor)
}

// CanView — базовый доступ к админке: любая присвоенная роль.
func (s RoleSet) CanView() bool {
	return !s.IsEmpty()
}

// Satisfies — единственная функция сравнения по решётке возможностей.
// Возвращает true, если роль required присвоена явно, пользователь admin
// или максимальная роль множества не ниже required.
// Пустая required удовлетворяется любым непустым множеством.
func (s RoleSet) Satisfies(required Role) bool {
	if s.IsEmpty() {
		return false
	}
	if required == "" || s.IsAdmin() || s.Has(required) {
		return true
	}
	need := level(required)
	if need == 0 {
		// Неизвестная требуемая роль — доступ закрыт.
		return false
	}
	return level(s.Highest()) >= need
}
