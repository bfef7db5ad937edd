package pages

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/guard"
	"github.com/vixio/admin-module/internal/ui/i18n"
)

func TestMain(m *testing.M) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := i18n.LoadFromEmbedFS(i18n.Init(logger), logger); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func render(t *testing.T, lang string, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	ctx := i18n.WithLang(context.Background(), lang)
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestLogin_EscapesError(t *testing.T) {
	html := render(t, "pt", Login(LoginData{
		Action: "/admin/login",
		Email:  `a"b@x.com`,
		Error:  "<script>alert(1)</script>",
	}))

	if strings.Contains(html, "<script>") {
		t.Error("текст ошибки не экранирован")
	}
	if !strings.Contains(html, `action="/admin/login"`) {
		t.Error("нет action формы")
	}
	if !strings.Contains(html, `value="a&#34;b@x.com"`) {
		t.Errorf("email не сохранён в форме: %s", html)
	}
	if !strings.Contains(html, `lang="pt"`) {
		t.Error("нет атрибута lang")
	}
}

func TestSection_FilteredMenu(t *testing.T) {
	menu := guard.FilterMenu(guard.AdminMenu(), rbac.NewRoleSet(rbac.RoleEditor))
	html := render(t, "en", Section(LayoutData{
		TitleKey:    "nav.leads",
		Menu:        menu,
		CurrentPath: "/admin/leads",
		UserEmail:   "editor@vixio.app",
		Role:        rbac.RoleEditor,
	}))

	if strings.Contains(html, `href="/admin/users"`) {
		t.Error("пункт Users виден редактору")
	}
	for _, path := range []string{"/admin/", "/admin/leads", "/admin/whatsapp"} {
		if !strings.Contains(html, `href="`+path+`"`) {
			t.Errorf("нет пункта %s", path)
		}
	}
	if !strings.Contains(html, `class="active"`) {
		t.Error("текущий пункт не подсвечен")
	}
	if !strings.Contains(html, "editor@vixio.app") || !strings.Contains(html, `action="/admin/logout"`) {
		t.Error("нет верхней панели пользователя")
	}
}

func TestLoading_NoNavigation(t *testing.T) {
	html := render(t, "pt", Loading())
	if strings.Contains(html, "<nav") || strings.Contains(html, "/admin/users") {
		t.Error("страница загрузки раскрывает навигацию")
	}
}

func TestAccessDenied(t *testing.T) {
	html := render(t, "en", AccessDenied(LayoutData{UserEmail: "v@vixio.app"}, rbac.RoleAdmin))
	if !strings.Contains(html, "Access denied") {
		t.Errorf("нет заголовка отказа: %s", html)
	}
}

func TestSignUp_Done(t *testing.T) {
	html := render(t, "pt", SignUp(SignUpData{LoginPath: "/admin/login", Done: true}))
	if strings.Contains(html, "<form") {
		t.Error("после регистрации форма не должна показываться")
	}
}
