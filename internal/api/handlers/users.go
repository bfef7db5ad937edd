// users.go — управление пользователями и их ролями.
// Пользователи читаются из Keycloak, роли хранятся в user_roles.
// Доступ: только admin (RequireRole на уровне маршрутизатора).
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/vixio/admin-module/internal/api/errors"
	"github.com/vixio/admin-module/internal/api/middleware"
	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/service"
)

// AdminUser — пользователь в ответах API.
type AdminUser struct {
	ID        string               `json:"id"`
	Username  string               `json:"username"`
	Email     *openapi_types.Email `json:"email,omitempty"`
	FullName  string               `json:"full_name,omitempty"`
	Enabled   bool                 `json:"enabled"`
	Roles     []string             `json:"roles"`
	CreatedAt *time.Time           `json:"created_at,omitempty"`
}

// AdminUserList — страница пользователей.
type AdminUserList struct {
	Items   []AdminUser `json:"items"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// RoleBinding — привязка роли в ответах API.
type RoleBinding struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleBindingList — привязки ролей пользователя.
type RoleBindingList struct {
	Items []RoleBinding `json:"items"`
}

// SetRolesRequest — тело PUT /api/v1/users/{id}/roles.
type SetRolesRequest struct {
	Roles []string `json:"roles"`
}

// ListUsers — GET /api/v1/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var (
		query  string
		limit  *int
		offset *int
	)
	params := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "q", params, &query); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр q")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", params, &limit); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр limit")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", params, &offset); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр offset")
		return
	}
	l, o := paginationDefaults(limit, offset)

	users, total, err := h.users.ListUsers(r.Context(), query, l, o)
	if err != nil {
		h.writeServiceError(w, "Ошибка получения пользователей", err)
		return
	}

	items := make([]AdminUser, 0, len(users))
	for _, u := range users {
		items = append(items, toAPIUser(u))
	}
	writeJSON(w, http.StatusOK, AdminUserList{
		Items:   items,
		Total:   total,
		Limit:   l,
		Offset:  o,
		HasMore: o+len(items) < total,
	})
}

// GetUser — GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), id.String())
	if err != nil {
		h.writeServiceError(w, "Ошибка получения пользователя", err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIUser(user))
}

// ListUserRoles — GET /api/v1/users/{id}/roles.
func (h *APIHandler) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	bindings, err := h.users.ListBindings(r.Context(), id.String())
	if err != nil {
		h.writeServiceError(w, "Ошибка получения ролей", err)
		return
	}

	items := make([]RoleBinding, 0, len(bindings))
	for _, b := range bindings {
		items = append(items, toAPIBinding(b))
	}
	writeJSON(w, http.StatusOK, RoleBindingList{Items: items})
}

// SetUserRoles — PUT /api/v1/users/{id}/roles.
// Заменяет набор ролей целиком, пустой список отзывает все роли.
func (h *APIHandler) SetUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req SetRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}
	if req.Roles == nil {
		apierrors.ValidationError(w, "Поле roles обязательно")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	user, err := h.users.SetRoles(r.Context(), id.String(), req.Roles, claims.Actor(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, "Ошибка замены ролей", err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIUser(user))
}

// AssignUserRole — PUT /api/v1/users/{id}/roles/{role}.
func (h *APIHandler) AssignUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	role := chi.URLParam(r, "role")

	claims := middleware.ClaimsFromContext(r.Context())
	binding, err := h.users.AssignRole(r.Context(), id.String(), role, claims.Actor())
	if err != nil {
		h.writeServiceError(w, "Ошибка назначения роли", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAPIBinding(binding))
}

// RevokeUserRole — DELETE /api/v1/users/{id}/roles/{role}.
func (h *APIHandler) RevokeUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	role := chi.URLParam(r, "role")

	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.users.RevokeRole(r.Context(), id.String(), role, claims.Actor(), claims.Subject); err != nil {
		h.writeServiceError(w, "Ошибка отзыва роли", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// userIDParam извлекает UUID пользователя из пути.
// При ошибке пишет 400 и возвращает false.
func userIDParam(w http.ResponseWriter, r *http.Request) (openapi_types.UUID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор пользователя")
		return id, false
	}
	return id, true
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRole):
		apierrors.ValidationError(w, service.ErrInvalidRole.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Пользователь или роль не найдены")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, "Роль уже назначена")
	case errors.Is(err, service.ErrIDPUnavailable):
		h.logger.Warn(msg, slog.String("error", err.Error()))
		apierrors.IDPUnavailable(w, "Keycloak недоступен")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

func toAPIUser(u *model.AdminUser) AdminUser {
	out := AdminUser{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Enabled:  u.Enabled,
		Roles:    u.Roles,
	}
	if out.Roles == nil {
		out.Roles = []string{}
	}
	if u.Email != "" {
		email := openapi_types.Email(u.Email)
		out.Email = &email
	}
	if !u.CreatedAt.IsZero() {
		t := u.CreatedAt
		out.CreatedAt = &t
	}
	return out
}

func toAPIBinding(b *model.RoleBinding) RoleBinding {
	return RoleBinding{
		ID:        b.ID,
		UserID:    b.UserID,
		Role:      b.Role,
		CreatedBy: b.CreatedBy,
		CreatedAt: b.CreatedAt,
	}
}
