package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/vixio/admin-module/internal/ui/i18n"
)

const langCookieMaxAge = 365 * 24 * 60 * 60

// HandleSetLanguage запоминает язык в cookie и возвращает на исходную страницу.
// Неизвестный язык заменяется языком по умолчанию.
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !i18n.IsSupported(lang) {
		lang = i18n.DefaultLang
	}

	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   langCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, backPath(r.Referer()), http.StatusSeeOther)
}

// backPath берёт из Referer путь внутри /admin; всё остальное ведёт на главную.
func backPath(referer string) string {
	u, err := url.Parse(referer)
	if err != nil || (u.Path != "/admin" && !strings.HasPrefix(u.Path, "/admin/")) {
		return homePath
	}
	back := url.URL{Path: u.Path, RawQuery: u.RawQuery}
	return back.String()
}
