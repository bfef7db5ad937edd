package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vixio/admin-module/internal/identity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRealm — Keycloak с одним realm vixio: token endpoint и Admin API.
type fakeRealm struct {
	tokens    atomic.Int32
	tokenTTL  int
	tokenCode int
	admin     http.HandlerFunc
}

func newFakeRealm(t *testing.T, admin http.HandlerFunc) (*fakeRealm, *Client) {
	t.Helper()
	f := &fakeRealm{tokenTTL: 300, tokenCode: http.StatusOK, admin: admin}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/vixio/protocol/openid-connect/token", f.token)
	mux.HandleFunc("/admin/realms/vixio/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sa-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.admin == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.admin(w, r)
	})
	mux.HandleFunc("GET /admin/realms/vixio", func(w http.ResponseWriter, r *http.Request) {
		if f.admin != nil {
			f.admin(w, r)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, New(srv.URL+"/", "vixio", "vixio-admin-module", "sa-secret", srv.Client(), testLogger())
}

func (f *fakeRealm) token(w http.ResponseWriter, r *http.Request) {
	f.tokens.Add(1)
	if err := r.ParseForm(); err != nil ||
		r.PostForm.Get("grant_type") != "client_credentials" ||
		r.PostForm.Get("client_id") != "vixio-admin-module" ||
		r.PostForm.Get("client_secret") != "sa-secret" {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	if f.tokenCode != http.StatusOK {
		w.WriteHeader(f.tokenCode)
		return
	}
	writeJSONBody(w, http.StatusOK, serviceTokenResponse{AccessToken: "sa-token", TokenType: "Bearer", ExpiresIn: f.tokenTTL})
}

func writeJSONBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ServiceTokenCache(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		ttl        int
		advance    time.Duration
		wantTokens int32
	}{
		{name: "токен из кэша", ttl: 300, advance: time.Minute, wantTokens: 1},
		{name: "истекает через 20s", ttl: 300, advance: 280 * time.Second, wantTokens: 2},
		{name: "истёк", ttl: 60, advance: 2 * time.Minute, wantTokens: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeRealm(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSONBody(w, http.StatusOK, 3)
			})
			f.tokenTTL = tt.ttl
			now := base
			c.now = func() time.Time { return now }

			for range 2 {
				if _, err := c.CountUsers(context.Background()); err != nil {
					t.Fatalf("CountUsers: %v", err)
				}
				now = now.Add(tt.advance)
			}
			if got := f.tokens.Load(); got != tt.wantTokens {
				t.Errorf("запросов токена = %d, хотели %d", got, tt.wantTokens)
			}
		})
	}
}

func TestClient_ServiceTokenRejected(t *testing.T) {
	f, c := newFakeRealm(t, nil)
	f.tokenCode = http.StatusServiceUnavailable

	_, err := c.CountUsers(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, хотели APIError 503", err)
	}
}

func TestClient_ListUsers(t *testing.T) {
	var gotQuery string
	_, c := newFakeRealm(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSONBody(w, http.StatusOK, []KeycloakUser{
			{ID: "u-1", Username: "ana@vixio.app", Email: "ana@vixio.app", Enabled: true},
			{ID: "u-2", Username: "rui@vixio.app", Email: "rui@vixio.app"},
		})
	})

	users, err := c.ListUsers(context.Background(), "ana silva", 20, 10)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].ID != "u-1" {
		t.Errorf("users = %+v", users)
	}
	if gotQuery != "first=20&max=10&search=ana+silva" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestClient_GetUser(t *testing.T) {
	_, c := newFakeRealm(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/realms/vixio/users/u-1":
			writeJSONBody(w, http.StatusOK, KeycloakUser{ID: "u-1", FirstName: "Ana", LastName: "Silva", CreatedAt: 1700000000000})
		case "/admin/realms/vixio/users/u-500":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	u, err := c.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.FullName() != "Ana Silva" || !u.CreatedAtTime().Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("user = %+v", u)
	}

	if _, err := c.GetUser(ctx, "u-x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser(u-x) = %v, хотели ErrUserNotFound", err)
	}
	if _, err := c.GetUser(ctx, "u-500"); err == nil || errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser(u-500) = %v, хотели ошибку API", err)
	}
}

func TestClient_CreateUser(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		location string
		wantID   string
		wantErr  error
		anyErr   bool
	}{
		{name: "создан", status: http.StatusCreated, location: "/admin/realms/vixio/users/0f1e", wantID: "0f1e"},
		{name: "email занят", status: http.StatusConflict, wantErr: identity.ErrUserExists},
		{name: "нет Location", status: http.StatusCreated, anyErr: true},
		{name: "ошибка Keycloak", status: http.StatusBadRequest, anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got userCreateRequest
			_, c := newFakeRealm(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				if tt.location != "" {
					w.Header().Set("Location", "http://kc"+tt.location)
				}
				w.WriteHeader(tt.status)
			})

			id, err := c.CreateUser(context.Background(), "ana@vixio.app", "s3cret!", " Ana  Maria Silva ")
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, хотели %v", err, tt.wantErr)
				}
				return
			case tt.anyErr:
				if err == nil {
					t.Errorf("хотели ошибку, получили id %q", id)
				}
				return
			case err != nil:
				t.Fatalf("CreateUser: %v", err)
			}

			if id != tt.wantID {
				t.Errorf("id = %q, хотели %q", id, tt.wantID)
			}
			if got.Username != "ana@vixio.app" || got.FirstName != "Ana" || got.LastName != "Maria Silva" || !got.Enabled {
				t.Errorf("тело запроса = %+v", got)
			}
			if len(got.Credentials) != 1 || got.Credentials[0].Value != "s3cret!" || got.Credentials[0].Temporary {
				t.Errorf("credentials = %+v", got.Credentials)
			}
		})
	}
}

func TestClient_ExecuteActionsEmail(t *testing.T) {
	var (
		gotQuery   string
		gotActions []string
	)
	_, c := newFakeRealm(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || !strings.HasSuffix(r.URL.Path, "/users/u-1/execute-actions-email") {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotActions)
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.ExecuteActionsEmail(context.Background(), "u-1", "vixio-admin", "https://vixio.app/admin/login")
	if err != nil {
		t.Fatalf("ExecuteActionsEmail: %v", err)
	}
	if len(gotActions) != 1 || gotActions[0] != "VERIFY_EMAIL" {
		t.Errorf("actions = %v", gotActions)
	}
	if !strings.Contains(gotQuery, "client_id=vixio-admin") || !strings.Contains(gotQuery, "redirect_uri=https%3A%2F%2Fvixio.app%2Fadmin%2Flogin") {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestClient_DeleteUser(t *testing.T) {
	deleted := ""
	_, c := newFakeRealm(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		deleted = strings.TrimPrefix(r.URL.Path, "/admin/realms/vixio/users/")
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.DeleteUser(context.Background(), "u-9"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if deleted != "u-9" {
		t.Errorf("удалён %q", deleted)
	}
}

func TestClient_CheckReady(t *testing.T) {
	tests := []struct {
		name   string
		admin  http.HandlerFunc
		status string
	}{
		{
			name:   "realm включён",
			admin:  func(w http.ResponseWriter, _ *http.Request) { writeJSONBody(w, http.StatusOK, RealmRepresentation{Realm: "vixio", Enabled: true}) },
			status: "ok",
		},
		{
			name:   "realm выключен",
			admin:  func(w http.ResponseWriter, _ *http.Request) { writeJSONBody(w, http.StatusOK, RealmRepresentation{Realm: "vixio"}) },
			status: "degraded",
		},
		{
			name:   "ошибка",
			admin:  func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			status: "fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newFakeRealm(t, tt.admin)
			if status, msg := c.CheckReady(); status != tt.status {
				t.Errorf("CheckReady() = %s (%s), хотели %s", status, msg, tt.status)
			}
		})
	}
}

func TestClient_CheckReady_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "vixio", "id", "secret", nil, testLogger())
	if status, _ := c.CheckReady(); status != "fail" {
		t.Errorf("CheckReady() = %s, хотели fail", status)
	}
}

func TestSplitFullName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Ana Silva", "Ana", "Silva"},
		{"  Ana   Maria Silva ", "Ana", "Maria Silva"},
		{"Ana", "Ana", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := splitFullName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("splitFullName(%q) = %q, %q", tt.in, first, last)
		}
	}
}

func TestKeycloakUser_ToModel(t *testing.T) {
	u := KeycloakUser{ID: "u-1", Email: "ana@vixio.app", FirstName: "Ana", CreatedAt: 1700000000000}
	m := u.ToModel()
	if m.ID != "u-1" || m.Email != "ana@vixio.app" || m.FullName != "Ana" || m.CreatedAt.UnixMilli() != 1700000000000 {
		t.Errorf("ToModel() = %+v", m)
	}
}
