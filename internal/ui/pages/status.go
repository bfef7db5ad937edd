package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/ui/i18n"
)

// Loading — заглушка, пока состояние сессии ещё не определено.
// Страница не раскрывает ни содержимого раздела, ни навигации.
func Loading() templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="loading" aria-busy="true">`)
		hw.text(i18n.T(ctx, "loading.message"))
		hw.raw(`</div>`)
		return hw.err
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return document(i18n.T(ctx, "loading.title"), body).Render(ctx, w)
	})
}

// AccessDenied — сообщение об отказе внутри каркаса админки.
func AccessDenied(layout LayoutData, required rbac.Role) templ.Component {
	layout.TitleKey = "denied.title"
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="card"><h2>`)
		hw.text(i18n.T(ctx, "denied.title"))
		hw.raw(`</h2><p>`)
		hw.text(i18n.Tf(ctx, "denied.message", i18n.T(ctx, "role."+string(required))))
		hw.raw(`</p><a href="/admin/">`)
		hw.text(i18n.T(ctx, "denied.back"))
		hw.raw(`</a></div>`)
		return hw.err
	})
	return Layout(layout, body)
}

// Section — страница раздела админки. Содержимое разделов подключается
// отдельно, здесь только заголовок и заглушка.
func Section(layout LayoutData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="card"><h2>`)
		hw.text(i18n.T(ctx, layout.TitleKey))
		hw.raw(`</h2><p>`)
		hw.text(i18n.T(ctx, "page.placeholder"))
		hw.raw(`</p></div>`)
		return hw.err
	})
	return Layout(layout, body)
}
