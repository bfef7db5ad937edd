package guard

import (
	"github.com/vixio/admin-module/internal/domain/rbac"
)

// Item — пункт навигации. Пустая RequiredRole — достаточно любой роли.
type Item struct {
	// Title — ключ i18n или текст пункта
	Title string `json:"title"`
	// Path — путь страницы
	Path string `json:"path"`
	// RequiredRole — минимальная роль для показа пункта
	RequiredRole rbac.Role `json:"required_role,omitempty"`
}

// Group — группа пунктов навигации.
type Group struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Menu — навигация админки.
type Menu struct {
	Groups []Group `json:"groups"`
}

// FilterMenu оставляет пункты, доступные набору ролей, и скрывает группы,
// в которых не осталось ни одного пункта. Без ролей меню пустое.
func FilterMenu(menu Menu, roles rbac.RoleSet) Menu {
	out := Menu{Groups: make([]Group, 0, len(menu.Groups))}
	if !roles.CanView() {
		return out
	}

	for _, g := range menu.Groups {
		items := make([]Item, 0, len(g.Items))
		for _, it := range g.Items {
			if roles.Satisfies(it.RequiredRole) {
				items = append(items, it)
			}
		}
		if len(items) == 0 {
			continue
		}
		out.Groups = append(out.Groups, Group{Title: g.Title, Items: items})
	}
	return out
}

// AdminMenu — навигация панели администратора Vixio.
// Пути совпадают с маршрутами, которые регистрирует сервер.
func AdminMenu() Menu {
	return Menu{Groups: []Group{
		{
			Title: "nav.group.overview",
			Items: []Item{
				{Title: "nav.dashboard", Path: "/admin/", RequiredRole: rbac.RoleViewer},
				{Title: "nav.analytics", Path: "/admin/analytics", RequiredRole: rbac.RoleViewer},
			},
		},
		{
			Title: "nav.group.content",
			Items: []Item{
				{Title: "nav.leads", Path: "/admin/leads", RequiredRole: rbac.RoleEditor},
				{Title: "nav.content", Path: "/admin/content", RequiredRole: rbac.RoleEditor},
				{Title: "nav.navigation", Path: "/admin/navigation", RequiredRole: rbac.RoleEditor},
				{Title: "nav.whatsapp", Path: "/admin/whatsapp", RequiredRole: rbac.RoleEditor},
			},
		},
		{
			Title: "nav.group.settings",
			Items: []Item{
				{Title: "nav.users", Path: "/admin/users", RequiredRole: rbac.RoleAdmin},
			},
		},
	}}
}
