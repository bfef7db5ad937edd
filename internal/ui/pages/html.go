// Пакет pages — HTML-компоненты Admin UI (templ.Component).
package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/vixio/admin-module/internal/ui/i18n"
)

// StaticPrefix — путь, по которому сервер раздаёт пакет static.
const StaticPrefix = "/admin/static/"

// htmlWriter запоминает первую ошибку записи, дальнейшие записи пропускаются.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) attr(name, value string) {
	h.raw(" " + name + `="`)
	h.text(value)
	h.raw(`"`)
}

func (h *htmlWriter) component(ctx context.Context, c templ.Component) {
	if h.err == nil && c != nil {
		h.err = c.Render(ctx, h.w)
	}
}

// document оборачивает body в html-документ.
func document(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<!DOCTYPE html><html`)
		hw.attr("lang", i18n.LangFromContext(ctx))
		hw.raw(`><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		hw.text(title + " | " + i18n.T(ctx, "app.title"))
		hw.raw(`</title><link rel="stylesheet"`)
		hw.attr("href", StaticPrefix+"css/admin.css")
		hw.raw(`></head><body>`)
		hw.component(ctx, body)
		hw.raw(`</body></html>`)
		return hw.err
	})
}

// alert выводит блок сообщения; пустой текст ничего не выводит.
func alert(hw *htmlWriter, kind, msg string) {
	if msg == "" {
		return
	}
	hw.raw(`<div class="alert ` + kind + `" role="alert">`)
	hw.text(msg)
	hw.raw(`</div>`)
}
