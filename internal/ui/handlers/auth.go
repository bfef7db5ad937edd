// auth.go — вход, регистрация и выход через Session Store клиента.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vixio/admin-module/internal/identity"
	"github.com/vixio/admin-module/internal/session"
	"github.com/vixio/admin-module/internal/ui/i18n"
	uimiddleware "github.com/vixio/admin-module/internal/ui/middleware"
	"github.com/vixio/admin-module/internal/ui/pages"
)

// homePath — страница, на которую попадает пользователь после входа.
const homePath = "/admin/"

// StoreRemover удаляет session store клиента из реестра.
type StoreRemover interface {
	Remove(clientID string)
}

// AuthHandler — обработчики аутентификации Admin UI.
type AuthHandler struct {
	render    *Renderer
	stores    StoreRemover
	loginPath string
	logger    *slog.Logger
}

// NewAuthHandler создаёт новый AuthHandler.
func NewAuthHandler(render *Renderer, stores StoreRemover, loginPath string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		render:    render,
		stores:    stores,
		loginPath: loginPath,
		logger:    logger.With(slog.String("component", "ui_auth")),
	}
}

// HandleLoginPage — GET /admin/login.
// Пользователь с доступом к админке сразу отправляется на главную.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if st := session.FromContext(r.Context()); st != nil {
		if state := st.State(); state.Authenticated() && state.CanView() {
			http.Redirect(w, r, homePath, http.StatusFound)
			return
		}
	}
	h.render.HTML(w, r, http.StatusOK, pages.Login(pages.LoginData{Action: h.loginPath}))
}

// HandleLogin — POST /admin/login.
// Ошибка провайдера показывается как есть; пользователь без ролей получает
// сообщение об отсутствии доступа, а его сессия завершается в store.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	data := pages.LoginData{Action: h.loginPath, Email: email}

	if email == "" || password == "" {
		data.Error = i18n.T(r.Context(), "login.error.required")
		h.render.HTML(w, r, http.StatusBadRequest, pages.Login(data))
		return
	}

	st := session.FromContext(r.Context())
	if st == nil {
		h.logger.Error("Нет session store в контексте запроса")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	err := st.SignIn(r.Context(), email, password)
	if err == nil {
		http.Redirect(w, r, homePath, http.StatusSeeOther)
		return
	}

	status := http.StatusServiceUnavailable
	switch ae, isAuth := identity.AsAuthError(err); {
	case errors.Is(err, session.ErrNoPermission):
		status = http.StatusForbidden
		data.Error = i18n.T(r.Context(), "login.error.no_permission")
	case isAuth:
		status = http.StatusUnauthorized
		data.Error = providerMessage(ae)
	default:
		h.logger.Error("Ошибка входа",
			slog.String("error", err.Error()),
		)
		data.Error = i18n.T(r.Context(), "login.error.unavailable")
	}
	h.render.HTML(w, r, status, pages.Login(data))
}

// HandleSignUpPage — GET /admin/signup.
func (h *AuthHandler) HandleSignUpPage(w http.ResponseWriter, r *http.Request) {
	h.render.HTML(w, r, http.StatusOK, pages.SignUp(pages.SignUpData{LoginPath: h.loginPath}))
}

// HandleSignUp — POST /admin/signup.
// Регистрация не выдаёт ролей: доступ появится после назначения роли администратором.
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	data := pages.SignUpData{
		LoginPath: h.loginPath,
		Email:     strings.TrimSpace(r.FormValue("email")),
		FullName:  strings.TrimSpace(r.FormValue("full_name")),
	}
	password := r.FormValue("password")

	if data.Email == "" || data.FullName == "" || password == "" {
		data.Error = i18n.T(r.Context(), "signup.error.required")
		h.render.HTML(w, r, http.StatusBadRequest, pages.SignUp(data))
		return
	}

	st := session.FromContext(r.Context())
	if st == nil {
		h.logger.Error("Нет session store в контексте запроса")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	err := st.SignUp(r.Context(), data.Email, password, data.FullName)
	if err == nil {
		h.logger.Info("Пользователь зарегистрирован", slog.String("email", data.Email))
		data.Done = true
		h.render.HTML(w, r, http.StatusOK, pages.SignUp(data))
		return
	}

	status := http.StatusServiceUnavailable
	switch ae, isAuth := identity.AsAuthError(err); {
	case errors.Is(err, identity.ErrUserExists):
		status = http.StatusConflict
		data.Error = i18n.T(r.Context(), "signup.error.exists")
	case isAuth:
		status = http.StatusBadRequest
		data.Error = providerMessage(ae)
	default:
		h.logger.Error("Ошибка регистрации",
			slog.String("error", err.Error()),
		)
		data.Error = i18n.T(r.Context(), "login.error.unavailable")
	}
	h.render.HTML(w, r, status, pages.SignUp(data))
}

// HandleLogout — POST /admin/logout.
// Локальное состояние сбрасывается даже при ошибке провайдера, store
// клиента удаляется из реестра; cookie перезаписывает middleware клиента.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if st := session.FromContext(r.Context()); st != nil {
		userID := st.State().Session.UserID()
		if err := st.SignOut(r.Context()); err != nil {
			h.logger.Warn("Ошибка выхода у провайдера",
				slog.String("error", err.Error()),
			)
		}
		h.logger.Info("Пользователь вышел из админки", slog.String("user_id", userID))
	}
	if clientID := uimiddleware.ClientIDFromContext(r.Context()); clientID != "" && h.stores != nil {
		h.stores.Remove(clientID)
	}
	http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
}

// providerMessage — текст ошибки провайдера без изменений.
func providerMessage(ae *identity.AuthError) string {
	if ae.Message != "" {
		return ae.Message
	}
	return ae.Code
}
