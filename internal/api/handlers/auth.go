// auth.go — текущий пользователь и его навигация.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/vixio/admin-module/internal/api/errors"
	"github.com/vixio/admin-module/internal/api/middleware"
	"github.com/vixio/admin-module/internal/guard"
)

// CurrentUser — ответ GET /api/v1/auth/me.
type CurrentUser struct {
	ID          string               `json:"id"`
	Email       *openapi_types.Email `json:"email,omitempty"`
	FullName    string               `json:"full_name,omitempty"`
	Roles       []string             `json:"roles"`
	HighestRole string               `json:"highest_role,omitempty"`
	Permissions Permissions          `json:"permissions"`
}

// Permissions — производные предикаты ролей для клиента.
type Permissions struct {
	IsAdmin  bool `json:"is_admin"`
	IsEditor bool `json:"is_editor"`
	CanView  bool `json:"can_view"`
}

// GetCurrentUser — GET /api/v1/auth/me.
// Возвращает пользователя из JWT и его роли из user_roles.
// Доступ: любой пользователь с ролью.
func (h *APIHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	resp := CurrentUser{
		ID:          claims.Subject,
		FullName:    claims.Name,
		Roles:       claims.Roles.Strings(),
		HighestRole: string(claims.Roles.Highest()),
		Permissions: Permissions{
			IsAdmin:  claims.Roles.IsAdmin(),
			IsEditor: claims.Roles.IsEditor(),
			CanView:  claims.Roles.CanView(),
		},
	}
	if claims.Email != "" {
		email := openapi_types.Email(claims.Email)
		resp.Email = &email
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetNavigation — GET /api/v1/navigation.
// Возвращает навигацию админки, отфильтрованную по ролям пользователя.
func (h *APIHandler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	writeJSON(w, http.StatusOK, guard.FilterMenu(h.menu, claims.Roles))
}
