// Пакет handlers — HTTP-обработчики Admin UI.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/guard"
	"github.com/vixio/admin-module/internal/session"
	"github.com/vixio/admin-module/internal/ui/pages"
)

// Renderer — отрисовка страниц Admin UI. Реализует guard.Renderer.
type Renderer struct {
	menu   guard.Menu
	logger *slog.Logger
}

// NewRenderer создаёт Renderer с навигацией админки.
func NewRenderer(menu guard.Menu, logger *slog.Logger) *Renderer {
	return &Renderer{
		menu:   menu,
		logger: logger.With(slog.String("component", "ui.render")),
	}
}

// Loading отрисовывает заглушку загрузки.
func (rn *Renderer) Loading(w http.ResponseWriter, r *http.Request) {
	rn.HTML(w, r, http.StatusOK, pages.Loading())
}

// AccessDenied отрисовывает отказ в доступе к разделу (403).
func (rn *Renderer) AccessDenied(w http.ResponseWriter, r *http.Request, required rbac.Role) {
	rn.HTML(w, r, http.StatusForbidden, pages.AccessDenied(rn.Layout(r, "denied.title"), required))
}

// Layout собирает данные каркаса для пользователя текущего запроса.
// Навигация фильтруется по его ролям.
func (rn *Renderer) Layout(r *http.Request, titleKey string) pages.LayoutData {
	data := pages.LayoutData{
		TitleKey:    titleKey,
		CurrentPath: r.URL.Path,
	}
	st := session.FromContext(r.Context())
	if st == nil {
		return data
	}
	state := st.State()
	data.Menu = guard.FilterMenu(rn.menu, state.Roles)
	data.Role = state.Roles.Highest()
	if state.User != nil {
		data.UserEmail = state.User.Email
	}
	return data
}

// HTML отрисовывает компонент с указанным статусом.
func (rn *Renderer) HTML(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		rn.logger.Error("Ошибка рендеринга страницы",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
