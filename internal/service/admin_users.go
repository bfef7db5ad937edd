// Пакет service — бизнес-логика Admin Module.
// admin_users.go — сервис управления доступом: пользователи Keycloak
// и их роли из таблицы user_roles.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/keycloak"
	"github.com/vixio/admin-module/internal/repository"
)

// userDirectory — операции Keycloak Admin API для чтения пользователей.
type userDirectory interface {
	ListUsers(ctx context.Context, query string, first, max int) ([]keycloak.KeycloakUser, error)
	CountUsers(ctx context.Context) (int, error)
	GetUser(ctx context.Context, id string) (*keycloak.KeycloakUser, error)
}

// roleStore — хранилище привязок ролей.
type roleStore interface {
	repository.UserRoleRepository
	ReplaceRoles(ctx context.Context, userID string, roles rbac.RoleSet, createdBy string) error
}

// AdminUserService — сервис управления пользователями.
// Keycloak — источник пользователей, user_roles — источник ролей.
type AdminUserService struct {
	kcClient userDirectory
	roles    roleStore
	logger   *slog.Logger
}

// NewAdminUserService создаёт сервис управления пользователями.
func NewAdminUserService(kcClient userDirectory, roles roleStore, logger *slog.Logger) *AdminUserService {
	return &AdminUserService{
		kcClient: kcClient,
		roles:    roles,
		logger:   logger.With(slog.String("component", "admin_users_service")),
	}
}

// ListUsers возвращает пользователей Keycloak с их ролями.
func (s *AdminUserService) ListUsers(ctx context.Context, query string, limit, offset int) ([]*model.AdminUser, int, error) {
	kcUsers, err := s.kcClient.ListUsers(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: получение пользователей: %v", ErrIDPUnavailable, err)
	}

	total, err := s.kcClient.CountUsers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: подсчёт пользователей: %v", ErrIDPUnavailable, err)
	}

	// Одним запросом получаем роли всех пользователей
	byUser, err := s.roles.ListUserIDs(ctx)
	if err != nil {
		s.logger.Warn("Ошибка получения ролей, пользователи возвращены без ролей",
			slog.String("error", err.Error()),
		)
		byUser = nil
	}

	users := make([]*model.AdminUser, 0, len(kcUsers))
	for i := range kcUsers {
		users = append(users, toAdminUser(&kcUsers[i], rbac.NewRoleSet(byUser[kcUsers[i].ID]...)))
	}
	return users, total, nil
}

// GetUser возвращает пользователя по Keycloak ID.
func (s *AdminUserService) GetUser(ctx context.Context, id string) (*model.AdminUser, error) {
	kcUser, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	roles, err := s.roles.ListRoles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("получение ролей: %w", err)
	}
	return toAdminUser(kcUser, rbac.NewRoleSet(roles...)), nil
}

// ListBindings возвращает привязки ролей пользователя.
func (s *AdminUserService) ListBindings(ctx context.Context, id string) ([]*model.RoleBinding, error) {
	bindings, err := s.roles.ListBindings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("получение привязок ролей: %w", err)
	}
	return bindings, nil
}

// AssignRole выдаёт роль пользователю.
func (s *AdminUserService) AssignRole(ctx context.Context, id, role, createdBy string) (*model.RoleBinding, error) {
	if !rbac.IsValidRole(role) {
		return nil, ErrInvalidRole
	}
	if _, err := s.lookup(ctx, id); err != nil {
		return nil, err
	}

	binding := &model.RoleBinding{UserID: id, Role: role, CreatedBy: createdBy}
	if err := s.roles.Assign(ctx, binding); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("назначение роли: %w", err)
	}

	s.logger.Info("Роль назначена",
		slog.String("user_id", id),
		slog.String("role", role),
		slog.String("by", createdBy),
	)
	return binding, nil
}

// RevokeRole отзывает роль. Администратор не может снять роль admin сам с себя.
func (s *AdminUserService) RevokeRole(ctx context.Context, id, role, revokedBy, revokedByID string) error {
	if !rbac.IsValidRole(role) {
		return ErrInvalidRole
	}
	if id == revokedByID && rbac.Role(role) == rbac.RoleAdmin {
		return fmt.Errorf("%w: нельзя снять роль admin с собственной учётной записи", ErrValidation)
	}

	if err := s.roles.Revoke(ctx, id, rbac.Role(role)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("отзыв роли: %w", err)
	}

	s.logger.Info("Роль отозвана",
		slog.String("user_id", id),
		slog.String("role", role),
		slog.String("by", revokedBy),
	)
	return nil
}

// SetRoles заменяет набор ролей пользователя целиком.
func (s *AdminUserService) SetRoles(ctx context.Context, id string, roles []string, updatedBy, updatedByID string) (*model.AdminUser, error) {
	for _, r := range roles {
		if !rbac.IsValidRole(r) {
			return nil, ErrInvalidRole
		}
	}
	set := rbac.ParseRoleSet(roles)
	if id == updatedByID && !set.IsAdmin() {
		return nil, fmt.Errorf("%w: нельзя снять роль admin с собственной учётной записи", ErrValidation)
	}

	kcUser, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.roles.ReplaceRoles(ctx, id, set, updatedBy); err != nil {
		return nil, fmt.Errorf("замена ролей: %w", err)
	}

	s.logger.Info("Набор ролей заменён",
		slog.String("user_id", id),
		slog.Any("roles", set.Strings()),
		slog.String("by", updatedBy),
	)
	return toAdminUser(kcUser, set), nil
}

// BootstrapAdmins выдаёт роль admin перечисленным пользователям, если её ещё нет.
// Используется при старте для создания первых администраторов.
func (s *AdminUserService) BootstrapAdmins(ctx context.Context, ids []string) error {
	for _, id := range ids {
		err := s.roles.Assign(ctx, &model.RoleBinding{
			UserID:    id,
			Role:      string(rbac.RoleAdmin),
			CreatedBy: "bootstrap",
		})
		switch {
		case err == nil:
			s.logger.Info("Роль admin выдана при старте", slog.String("user_id", id))
		case errors.Is(err, repository.ErrConflict):
			// уже администратор
		default:
			return fmt.Errorf("выдача роли admin %s: %w", id, err)
		}
	}
	return nil
}

// lookup получает пользователя из Keycloak и переводит ошибки в ошибки сервиса.
func (s *AdminUserService) lookup(ctx context.Context, id string) (*keycloak.KeycloakUser, error) {
	kcUser, err := s.kcClient.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, keycloak.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: получение пользователя: %v", ErrIDPUnavailable, err)
	}
	return kcUser, nil
}

// toAdminUser объединяет пользователя Keycloak с его ролями.
func toAdminUser(kcUser *keycloak.KeycloakUser, roles rbac.RoleSet) *model.AdminUser {
	return &model.AdminUser{
		ID:        kcUser.ID,
		Username:  kcUser.Username,
		Email:     kcUser.Email,
		FullName:  kcUser.FullName(),
		Enabled:   kcUser.Enabled,
		Roles:     roles.Strings(),
		CreatedAt: kcUser.CreatedAtTime(),
	}
}
