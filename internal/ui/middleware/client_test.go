package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/identity"
	"github.com/vixio/admin-module/internal/identity/identitytest"
	"github.com/vixio/admin-module/internal/session"
	"github.com/vixio/admin-module/internal/ui/auth"
)

type staticRoles map[string]rbac.RoleSet

func (s staticRoles) Resolve(_ context.Context, userID string) rbac.RoleSet {
	return s[userID]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setup создаёт middleware с реестром, в котором каждый провайдер —
// фейк, стартующий с восстановленной сессией.
func setup(t *testing.T) (*ClientInstance, *auth.SessionManager, *session.Registry) {
	t.Helper()
	sm, err := auth.NewSessionManager("test-secret-key-for-client-instance", false)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	roles := staticRoles{
		"u-1":                   rbac.NewRoleSet(rbac.RoleEditor),
		"user-editor@vixio.app": rbac.NewRoleSet(rbac.RoleEditor),
	}
	reg := session.NewRegistry(
		session.RegistryConfig{Size: 16, TTL: time.Hour},
		session.ProviderFactoryFunc(func(restored *model.Session) identity.Provider {
			return identitytest.New(restored)
		}),
		roles,
		session.Options{Logger: testLogger()},
	)
	t.Cleanup(reg.Close)
	return NewClientInstance(sm, reg, testLogger()), sm, reg
}

func responseCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestClientInstance_NewClient(t *testing.T) {
	ci, sm, reg := setup(t)

	var gotID string
	var gotStore *session.Store
	handler := ci.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = ClientIDFromContext(r.Context())
		gotStore = session.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/", nil))

	if gotID == "" || gotStore == nil {
		t.Fatalf("в контексте нет клиента: id=%q store=%v", gotID, gotStore)
	}
	if reg.Len() != 1 {
		t.Errorf("Registry.Len() = %d, хотели 1", reg.Len())
	}

	c := responseCookie(rec)
	if c == nil {
		t.Fatal("новый клиент не получил cookie")
	}
	data, err := sm.Decrypt(c.Value)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if data.ClientID != gotID || data.AccessToken != "" {
		t.Errorf("cookie = %+v", data)
	}
}

func TestClientInstance_SameClientSameStore(t *testing.T) {
	ci, sm, _ := setup(t)

	var stores []*session.Store
	handler := ci.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stores = append(stores, session.FromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	value, err := sm.Encrypt(&auth.SessionData{ClientID: "client-1"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: value})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		// Токены не менялись — cookie не перезаписывается
		if c := responseCookie(rec); c != nil {
			t.Errorf("неожиданная перезапись cookie")
		}
	}

	if len(stores) != 2 || stores[0] != stores[1] {
		t.Error("один клиент должен получать один и тот же store")
	}
}

func TestClientInstance_RestoresSession(t *testing.T) {
	ci, sm, _ := setup(t)

	sess := identitytest.NewSession("u-1", "editor@vixio.app")
	value, err := sm.Encrypt(auth.NewSessionData("client-2", sess))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	var state session.State
	handler := ci.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := session.FromContext(r.Context())
		select {
		case <-st.Ready():
		case <-time.After(2 * time.Second):
			t.Error("store не стал готов")
		}
		state = st.State()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: value})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !state.Authenticated() || state.User.ID != "u-1" || !state.IsEditor() {
		t.Errorf("восстановленное состояние = %+v", state)
	}
}

func TestClientInstance_CookieFollowsSignIn(t *testing.T) {
	ci, sm, _ := setup(t)

	handler := ci.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := session.FromContext(r.Context())
		if err := st.SignIn(r.Context(), "editor@vixio.app", "secret"); err != nil {
			t.Errorf("SignIn: %v", err)
		}
		http.Redirect(w, r, "/admin/", http.StatusFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/login", nil))

	c := responseCookie(rec)
	if c == nil {
		t.Fatal("нет cookie после входа")
	}
	data, err := sm.Decrypt(c.Value)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if data.AccessToken != "access-user-editor@vixio.app" || data.UserID != "user-editor@vixio.app" {
		t.Errorf("cookie после входа = %+v", data)
	}
}

func TestClientInstance_CorruptCookie(t *testing.T) {
	ci, sm, _ := setup(t)

	var gotID string
	handler := ci.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = ClientIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	c := responseCookie(rec)
	if c == nil {
		t.Fatal("повреждённый cookie не заменён")
	}
	data, err := sm.Decrypt(c.Value)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if data.ClientID == "" || data.ClientID != gotID {
		t.Errorf("ClientID = %q, в контексте %q", data.ClientID, gotID)
	}
}
