// Пакет handlers — обработчики JSON API Admin Module.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/guard"
)

// userAdmin — операции управления пользователями и ролями.
// Реализуется service.AdminUserService.
type userAdmin interface {
	ListUsers(ctx context.Context, query string, limit, offset int) ([]*model.AdminUser, int, error)
	GetUser(ctx context.Context, id string) (*model.AdminUser, error)
	ListBindings(ctx context.Context, id string) ([]*model.RoleBinding, error)
	AssignRole(ctx context.Context, id, role, createdBy string) (*model.RoleBinding, error)
	RevokeRole(ctx context.Context, id, role, revokedBy, revokedByID string) error
	SetRoles(ctx context.Context, id string, roles []string, updatedBy, updatedByID string) (*model.AdminUser, error)
}

// APIHandler — обработчики JSON API. Probes и метрики приходят из
// встроенного HealthHandler.
type APIHandler struct {
	*HealthHandler
	users  userAdmin
	menu   guard.Menu
	logger *slog.Logger
}

// NewAPIHandler создаёт APIHandler.
func NewAPIHandler(health *HealthHandler, users userAdmin, menu guard.Menu, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		HealthHandler: health,
		users:         users,
		menu:          menu,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// writeJSON пишет data в JSON со статусом status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Границы пагинации списка пользователей, совпадают с контрактом.
const (
	defaultLimit = 100
	maxLimit     = 1000
)

// paginationDefaults подставляет значения по умолчанию и зажимает
// limit в [1, maxLimit], offset — в [0, ∞).
func paginationDefaults(limit, offset *int) (int, int) {
	l, o := defaultLimit, 0
	if limit != nil {
		l = min(max(*limit, 1), maxLimit)
	}
	if offset != nil {
		o = max(*offset, 0)
	}
	return l, o
}
