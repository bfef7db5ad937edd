package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/vixio/admin-module/internal/api/middleware"
	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/guard"
	"github.com/vixio/admin-module/internal/service"
)

const (
	adminID  = "0b6f7f5e-3c1a-4d43-9a55-0f3f1c0e2a11"
	editorID = "6c1d2a77-91b4-4c4e-8d2f-2b1e8a9c4f20"
)

// fakeUsers — userAdmin в памяти.
type fakeUsers struct {
	users map[string]*model.AdminUser
	err   error

	lastActor   string
	lastActorID string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*model.AdminUser{
		adminID:  {ID: adminID, Username: "root", Email: "root@vixio.app", Enabled: true, Roles: []string{"admin"}},
		editorID: {ID: editorID, Username: "ed", Enabled: true, Roles: []string{"editor"}},
	}}
}

func (f *fakeUsers) ListUsers(_ context.Context, _ string, limit, offset int) ([]*model.AdminUser, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	all := []*model.AdminUser{f.users[adminID], f.users[editorID]}
	if offset >= len(all) {
		return nil, len(all), nil
	}
	return all[offset:min(offset+limit, len(all))], len(all), nil
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*model.AdminUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) ListBindings(_ context.Context, id string) ([]*model.RoleBinding, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	out := make([]*model.RoleBinding, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, &model.RoleBinding{ID: "b-" + r, UserID: id, Role: r})
	}
	return out, nil
}

func (f *fakeUsers) AssignRole(_ context.Context, id, role, createdBy string) (*model.RoleBinding, error) {
	f.lastActor = createdBy
	if !rbac.IsValidRole(role) {
		return nil, service.ErrInvalidRole
	}
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	for _, r := range u.Roles {
		if r == role {
			return nil, service.ErrConflict
		}
	}
	u.Roles = append(u.Roles, role)
	return &model.RoleBinding{ID: "b-" + role, UserID: id, Role: role, CreatedBy: createdBy}, nil
}

func (f *fakeUsers) RevokeRole(_ context.Context, id, role, revokedBy, revokedByID string) error {
	f.lastActor, f.lastActorID = revokedBy, revokedByID
	if id == revokedByID && role == "admin" {
		return service.ErrValidation
	}
	if _, ok := f.users[id]; !ok {
		return service.ErrNotFound
	}
	return nil
}

func (f *fakeUsers) SetRoles(_ context.Context, id string, roles []string, updatedBy, updatedByID string) (*model.AdminUser, error) {
	f.lastActor, f.lastActorID = updatedBy, updatedByID
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	u.Roles = rbac.ParseRoleSet(roles).Strings()
	return u, nil
}

func newTestHandler(users userAdmin) (*APIHandler, http.Handler) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAPIHandler(NewHealthHandler(nil, nil), users, guard.AdminMenu(), logger)

	r := chi.NewRouter()
	r.Get("/api/v1/auth/me", h.GetCurrentUser)
	r.Get("/api/v1/navigation", h.GetNavigation)
	r.Get("/api/v1/users", h.ListUsers)
	r.Get("/api/v1/users/{id}", h.GetUser)
	r.Get("/api/v1/users/{id}/roles", h.ListUserRoles)
	r.Put("/api/v1/users/{id}/roles", h.SetUserRoles)
	r.Put("/api/v1/users/{id}/roles/{role}", h.AssignUserRole)
	r.Delete("/api/v1/users/{id}/roles/{role}", h.RevokeUserRole)
	return h, r
}

// do выполняет запрос от имени пользователя с указанными ролями.
func do(t *testing.T, h http.Handler, method, target, body string, roles ...rbac.Role) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	claims := &middleware.AuthClaims{
		Subject: adminID,
		Email:   "root@vixio.app",
		Name:    "Root Admin",
		Roles:   rbac.NewRoleSet(roles...),
	}
	req = req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyClaims, claims))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	return v
}

func TestGetCurrentUser(t *testing.T) {
	_, h := newTestHandler(newFakeUsers())

	rec := do(t, h, http.MethodGet, "/api/v1/auth/me", "", rbac.RoleEditor, rbac.RoleViewer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	me := decode[CurrentUser](t, rec)
	if me.ID != adminID || me.Email == nil || string(*me.Email) != "root@vixio.app" {
		t.Errorf("me = %+v", me)
	}
	if me.HighestRole != "editor" || len(me.Roles) != 2 {
		t.Errorf("roles = %v, highest = %q", me.Roles, me.HighestRole)
	}
	if me.Permissions.IsAdmin || !me.Permissions.IsEditor || !me.Permissions.CanView {
		t.Errorf("permissions = %+v", me.Permissions)
	}
}

func TestGetCurrentUser_NoClaims(t *testing.T) {
	_, h := newTestHandler(newFakeUsers())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, хотели 401", rec.Code)
	}
}

func TestGetNavigation(t *testing.T) {
	_, h := newTestHandler(newFakeUsers())

	tests := []struct {
		name      string
		roles     []rbac.Role
		wantUsers bool
		wantLeads bool
	}{
		{name: "admin", roles: []rbac.Role{rbac.RoleAdmin}, wantUsers: true, wantLeads: true},
		{name: "editor", roles: []rbac.Role{rbac.RoleEditor}, wantLeads: true},
		{name: "visualizador", roles: []rbac.Role{rbac.RoleViewer}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/v1/navigation", "", tt.roles...)
			menu := decode[guard.Menu](t, rec)

			paths := map[string]bool{}
			for _, g := range menu.Groups {
				for _, it := range g.Items {
					paths[it.Path] = true
				}
			}
			if !paths["/admin/"] {
				t.Errorf("нет пункта /admin/: %v", paths)
			}
			if paths["/admin/users"] != tt.wantUsers {
				t.Errorf("/admin/users = %v, хотели %v", paths["/admin/users"], tt.wantUsers)
			}
			if paths["/admin/leads"] != tt.wantLeads {
				t.Errorf("/admin/leads = %v, хотели %v", paths["/admin/leads"], tt.wantLeads)
			}
		})
	}
}

func TestListUsers(t *testing.T) {
	_, h := newTestHandler(newFakeUsers())

	rec := do(t, h, http.MethodGet, "/api/v1/users?limit=1", "", rbac.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	list := decode[AdminUserList](t, rec)
	if list.Total != 2 || len(list.Items) != 1 || !list.HasMore || list.Limit != 1 {
		t.Errorf("list = %+v", list)
	}
	if list.Items[0].Email == nil || list.Items[0].Roles[0] != "admin" {
		t.Errorf("item = %+v", list.Items[0])
	}

	rec = do(t, h, http.MethodGet, "/api/v1/users?offset=1", "", rbac.RoleAdmin)
	list = decode[AdminUserList](t, rec)
	if list.HasMore || len(list.Items) != 1 || list.Items[0].Email != nil {
		t.Errorf("вторая страница = %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/users?limit=abc", "", rbac.RoleAdmin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=abc: status = %d, хотели 400", rec.Code)
	}
}

func TestListUsers_IDPUnavailable(t *testing.T) {
	users := newFakeUsers()
	users.err = service.ErrIDPUnavailable
	_, h := newTestHandler(users)

	rec := do(t, h, http.MethodGet, "/api/v1/users", "", rbac.RoleAdmin)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, хотели 502", rec.Code)
	}
}

func TestUserEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "get", method: http.MethodGet, target: "/api/v1/users/" + editorID, wantStatus: http.StatusOK},
		{name: "get не uuid", method: http.MethodGet, target: "/api/v1/users/not-a-uuid", wantStatus: http.StatusBadRequest},
		{name: "get нет пользователя", method: http.MethodGet, target: "/api/v1/users/" + "11111111-2222-3333-4444-555555555555", wantStatus: http.StatusNotFound},
		{name: "роли", method: http.MethodGet, target: "/api/v1/users/" + editorID + "/roles", wantStatus: http.StatusOK},
		{name: "выдать", method: http.MethodPut, target: "/api/v1/users/" + editorID + "/roles/visualizador", wantStatus: http.StatusCreated},
		{name: "выдать повторно", method: http.MethodPut, target: "/api/v1/users/" + editorID + "/roles/editor", wantStatus: http.StatusConflict},
		{name: "выдать неизвестную", method: http.MethodPut, target: "/api/v1/users/" + editorID + "/roles/owner", wantStatus: http.StatusBadRequest},
		{name: "отозвать", method: http.MethodDelete, target: "/api/v1/users/" + editorID + "/roles/editor", wantStatus: http.StatusNoContent},
		{name: "отозвать admin у себя", method: http.MethodDelete, target: "/api/v1/users/" + adminID + "/roles/admin", wantStatus: http.StatusBadRequest},
		{name: "заменить", method: http.MethodPut, target: "/api/v1/users/" + editorID + "/roles", body: `{"roles":["visualizador"]}`, wantStatus: http.StatusOK},
		{name: "заменить без roles", method: http.MethodPut, target: "/api/v1/users/" + editorID + "/roles", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "заменить битый json", method: http.MethodPut, target: "/api/v1/users/" + editorID + "/roles", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestHandler(newFakeUsers())
			rec := do(t, h, tt.method, tt.target, tt.body, rbac.RoleAdmin)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, хотели %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestAssignUserRole_Actor(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestHandler(users)

	rec := do(t, h, http.MethodPut, "/api/v1/users/"+editorID+"/roles/admin", "", rbac.RoleAdmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	b := decode[RoleBinding](t, rec)
	if b.CreatedBy != "root@vixio.app" || b.UserID != editorID || b.Role != "admin" {
		t.Errorf("binding = %+v", b)
	}

	do(t, h, http.MethodPut, "/api/v1/users/"+editorID+"/roles", `{"roles":[]}`, rbac.RoleAdmin)
	if users.lastActorID != adminID || users.lastActor != "root@vixio.app" {
		t.Errorf("actor = %q / %q", users.lastActor, users.lastActorID)
	}
	if len(users.users[editorID].Roles) != 0 {
		t.Errorf("роли после очистки = %v", users.users[editorID].Roles)
	}
}

func TestWriteServiceError_Internal(t *testing.T) {
	users := newFakeUsers()
	users.err = errors.New("boom")
	_, h := newTestHandler(users)

	rec := do(t, h, http.MethodGet, "/api/v1/users/"+editorID, "", rbac.RoleAdmin)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, хотели 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("внутренняя ошибка раскрыта клиенту: %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(nil, readyStub{"ok"})

	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready без PostgreSQL = %d, хотели 503", rec.Code)
	}

	for _, tt := range []struct {
		statuses []string
		want     string
	}{
		{[]string{"ok", "ok"}, "ok"},
		{[]string{"ok", "degraded"}, "degraded"},
		{[]string{"degraded", "fail"}, "fail"},
	} {
		if got := overallStatus(tt.statuses...); got != tt.want {
			t.Errorf("overallStatus(%v) = %q, хотели %q", tt.statuses, got, tt.want)
		}
	}
}

type readyStub struct{ status string }

func (s readyStub) CheckReady() (string, string) { return s.status, "" }

func TestPaginationDefaults(t *testing.T) {
	ptr := func(v int) *int { return &v }
	tests := []struct {
		limit, offset *int
		wantL, wantO  int
	}{
		{nil, nil, 100, 0},
		{ptr(0), ptr(-5), 1, 0},
		{ptr(5000), ptr(20), 1000, 20},
		{ptr(25), nil, 25, 0},
	}
	for _, tt := range tests {
		l, o := paginationDefaults(tt.limit, tt.offset)
		if l != tt.wantL || o != tt.wantO {
			t.Errorf("paginationDefaults = %d, %d, хотели %d, %d", l, o, tt.wantL, tt.wantO)
		}
	}
}
