// role_resolver.go — разрешение ролей пользователя из таблицы user_roles.
// Политика fail-closed: при сбое хранилища пользователь получает пустой
// набор ролей, ошибка только логируется.
package service

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vixio/admin-module/internal/domain/rbac"
)

var roleResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "am_role_resolutions_total",
		Help: "Количество разрешений ролей по результату (ok, empty, error)",
	},
	[]string{"result"},
)

// roleLister — чтение ролей пользователя из хранилища.
type roleLister interface {
	ListRoles(ctx context.Context, userID string) ([]rbac.Role, error)
}

// RoleResolver — источник ролей для Session Store и API.
// Реализует session.RoleResolver.
type RoleResolver struct {
	repo   roleLister
	logger *slog.Logger
}

// NewRoleResolver создаёт RoleResolver поверх репозитория ролей.
func NewRoleResolver(repo roleLister, logger *slog.Logger) *RoleResolver {
	return &RoleResolver{
		repo:   repo,
		logger: logger.With(slog.String("component", "role_resolver")),
	}
}

// Resolve возвращает набор ролей пользователя. Пустой userID и ошибка
// хранилища дают пустой набор.
func (r *RoleResolver) Resolve(ctx context.Context, userID string) rbac.RoleSet {
	if userID == "" {
		return rbac.RoleSet{}
	}

	roles, err := r.repo.ListRoles(ctx, userID)
	if err != nil {
		roleResolutionsTotal.WithLabelValues("error").Inc()
		r.logger.Error("Ошибка получения ролей, доступ запрещён",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return rbac.RoleSet{}
	}

	set := rbac.NewRoleSet(roles...)
	if set.Len() < len(roles) {
		r.logger.Debug("Повторяющиеся или неизвестные роли отброшены",
			slog.String("user_id", userID),
			slog.Int("rows", len(roles)),
			slog.Int("roles", set.Len()),
		)
	}

	if set.IsEmpty() {
		roleResolutionsTotal.WithLabelValues("empty").Inc()
	} else {
		roleResolutionsTotal.WithLabelValues("ok").Inc()
	}
	return set
}
