package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/guard"
	"github.com/vixio/admin-module/internal/ui/i18n"
)

// LayoutData — данные каркаса страниц для аутентифицированного пользователя.
type LayoutData struct {
	// TitleKey — ключ i18n заголовка страницы
	TitleKey string
	// Menu — навигация, уже отфильтрованная по ролям пользователя
	Menu guard.Menu
	// CurrentPath — путь текущей страницы (подсветка пункта меню)
	CurrentPath string
	// UserEmail — email пользователя в верхней панели
	UserEmail string
	// Role — старшая роль пользователя
	Role rbac.Role
}

// Layout — каркас: боковая навигация, верхняя панель (язык, выход) и body.
func Layout(data LayoutData, body templ.Component) templ.Component {
	inner := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="layout"><nav class="sidebar"><h1>`)
		hw.text(i18n.T(ctx, "app.title"))
		hw.raw(`</h1>`)
		for _, g := range data.Menu.Groups {
			hw.raw(`<div class="group"><div class="group-title">`)
			hw.text(i18n.T(ctx, g.Title))
			hw.raw(`</div>`)
			for _, it := range g.Items {
				hw.raw(`<a`)
				hw.attr("href", it.Path)
				if it.Path == data.CurrentPath {
					hw.raw(` class="active"`)
				}
				hw.raw(`>`)
				hw.text(i18n.T(ctx, it.Title))
				hw.raw(`</a>`)
			}
			hw.raw(`</div>`)
		}
		hw.raw(`</nav><main class="main"><div class="topbar">`)

		if data.UserEmail != "" {
			hw.raw(`<span>`)
			hw.text(i18n.Tf(ctx, "layout.signed_in_as", data.UserEmail))
			if data.Role != "" {
				hw.text(" (" + i18n.T(ctx, "role."+string(data.Role)) + ")")
			}
			hw.raw(`</span>`)
		}

		languageSwitch(ctx, hw)

		hw.raw(`<form method="post" action="/admin/logout"><button type="submit" class="link">`)
		hw.text(i18n.T(ctx, "layout.logout"))
		hw.raw(`</button></form></div>`)

		hw.component(ctx, body)
		hw.raw(`</main></div>`)
		return hw.err
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return document(i18n.T(ctx, data.TitleKey), inner).Render(ctx, w)
	})
}

// languageSwitch — кнопки переключения языка. Текущий язык не показывается.
func languageSwitch(ctx context.Context, hw *htmlWriter) {
	current := i18n.LangFromContext(ctx)
	hw.raw(`<form method="post" action="/admin/set-language">`)
	for _, lang := range i18n.Langs {
		if lang == current {
			continue
		}
		hw.raw(`<button type="submit" name="lang" class="link"`)
		hw.attr("value", lang)
		hw.attr("title", i18n.T(ctx, "layout.language"))
		hw.raw(`>`)
		hw.text(lang)
		hw.raw(`</button>`)
	}
	hw.raw(`</form>`)
}
