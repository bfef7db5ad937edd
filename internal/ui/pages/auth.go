package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/vixio/admin-module/internal/ui/i18n"
)

// LoginData — данные страницы входа.
type LoginData struct {
	// Action — адрес отправки формы (путь страницы входа)
	Action string
	// Email — введённый email (сохраняется после ошибки)
	Email string
	// Error — текст ошибки, показывается как есть
	Error string
	// Notice — информационное сообщение (например, после регистрации)
	Notice string
}

// Login — страница входа по email и паролю.
func Login(data LoginData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="card auth"><h2>`)
		hw.text(i18n.T(ctx, "login.title"))
		hw.raw(`</h2>`)
		alert(hw, "error", data.Error)
		alert(hw, "notice", data.Notice)

		hw.raw(`<form method="post"`)
		hw.attr("action", data.Action)
		hw.raw(`><label for="email">`)
		hw.text(i18n.T(ctx, "login.email"))
		hw.raw(`</label><input id="email" name="email" type="email" autocomplete="username" required`)
		hw.attr("value", data.Email)
		hw.raw(`><label for="password">`)
		hw.text(i18n.T(ctx, "login.password"))
		hw.raw(`</label><input id="password" name="password" type="password" autocomplete="current-password" required><button type="submit">`)
		hw.text(i18n.T(ctx, "login.submit"))
		hw.raw(`</button></form><p>`)
		hw.text(i18n.T(ctx, "login.no_account"))
		hw.raw(` <a href="/admin/signup">`)
		hw.text(i18n.T(ctx, "login.signup_link"))
		hw.raw(`</a></p>`)
		languageSwitch(ctx, hw)
		hw.raw(`</div>`)
		return hw.err
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return document(i18n.T(ctx, "login.title"), body).Render(ctx, w)
	})
}

// SignUpData — данные страницы регистрации.
type SignUpData struct {
	LoginPath string
	Email     string
	FullName  string
	Error     string
	// Done — регистрация принята, форма не показывается
	Done bool
}

// SignUp — страница регистрации. Роли новому пользователю не назначаются.
func SignUp(data SignUpData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="card auth"><h2>`)
		hw.text(i18n.T(ctx, "signup.title"))
		hw.raw(`</h2>`)
		alert(hw, "error", data.Error)

		if data.Done {
			alert(hw, "notice", i18n.T(ctx, "signup.success"))
		} else {
			hw.raw(`<form method="post" action="/admin/signup"><label for="full_name">`)
			hw.text(i18n.T(ctx, "signup.full_name"))
			hw.raw(`</label><input id="full_name" name="full_name" type="text" autocomplete="name" required`)
			hw.attr("value", data.FullName)
			hw.raw(`><label for="email">`)
			hw.text(i18n.T(ctx, "signup.email"))
			hw.raw(`</label><input id="email" name="email" type="email" autocomplete="email" required`)
			hw.attr("value", data.Email)
			hw.raw(`><label for="password">`)
			hw.text(i18n.T(ctx, "signup.password"))
			hw.raw(`</label><input id="password" name="password" type="password" autocomplete="new-password" required><button type="submit">`)
			hw.text(i18n.T(ctx, "signup.submit"))
			hw.raw(`</button></form>`)
		}

		hw.raw(`<p>`)
		hw.text(i18n.T(ctx, "signup.have_account"))
		hw.raw(` <a`)
		hw.attr("href", data.LoginPath)
		hw.raw(`>`)
		hw.text(i18n.T(ctx, "signup.login_link"))
		hw.raw(`</a></p></div>`)
		return hw.err
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return document(i18n.T(ctx, "signup.title"), body).Render(ctx, w)
	})
}
