package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/domain/rbac"
)

// UserRoleRepository — интерфейс доступа к таблице user_roles.
type UserRoleRepository interface {
	// ListRoles возвращает роли пользователя (select role where user_id = X).
	ListRoles(ctx context.Context, userID string) ([]rbac.Role, error)
	// Assign создаёт привязку роли. ErrConflict — привязка уже есть.
	Assign(ctx context.Context, binding *model.RoleBinding) error
	// Revoke удаляет привязку роли. ErrNotFound — привязки нет.
	Revoke(ctx context.Context, userID string, role rbac.Role) error
	// ListBindings возвращает все привязки пользователя.
	ListBindings(ctx context.Context, userID string) ([]*model.RoleBinding, error)
	// ListUserIDs возвращает роли по всем пользователям, у которых они есть.
	ListUserIDs(ctx context.Context) (map[string][]rbac.Role, error)
}

// userRoleRepo — реализация UserRoleRepository.
type userRoleRepo struct {
	db DBTX
}

// NewUserRoleRepository создаёт репозиторий ролей пользователей.
func NewUserRoleRepository(db DBTX) UserRoleRepository {
	return &userRoleRepo{db: db}
}

const urColumns = `id, user_id, role, created_by, created_at`

func (r *userRoleRepo) ListRoles(ctx context.Context, userID string) ([]rbac.Role, error) {
	rows, err := r.db.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ролей пользователя: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowTo[rbac.Role])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ролей пользователя: %w", err)
	}
	return roles, nil
}

func (r *userRoleRepo) Assign(ctx context.Context, b *model.RoleBinding) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	query := `
		INSERT INTO user_roles (id, user_id, role, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, b.ID, b.UserID, b.Role, b.CreatedBy).Scan(&b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка назначения роли: %w", err)
	}
	return nil
}

func (r *userRoleRepo) Revoke(ctx context.Context, userID string, role rbac.Role) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	if err != nil {
		return fmt.Errorf("ошибка отзыва роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRoleRepo) ListBindings(ctx context.Context, userID string) ([]*model.RoleBinding, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_roles
		WHERE user_id = $1
		ORDER BY created_at`, urColumns)

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения привязок ролей: %w", err)
	}
	defer rows.Close()

	var result []*model.RoleBinding
	for rows.Next() {
		b := &model.RoleBinding{}
		if err := rows.Scan(&b.ID, &b.UserID, &b.Role, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования привязки роли: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *userRoleRepo) ListUserIDs(ctx context.Context) (map[string][]rbac.Role, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id, role FROM user_roles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка ролей: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]rbac.Role)
	for rows.Next() {
		var userID, role string
		if err := rows.Scan(&userID, &role); err != nil {
			return nil, fmt.Errorf("ошибка сканирования роли: %w", err)
		}
		result[userID] = append(result[userID], rbac.Role(role))
	}
	return result, rows.Err()
}

// RoleStore — UserRoleRepository с транзакционной заменой набора ролей.
type RoleStore struct {
	UserRoleRepository
	db TxBeginner
}

// NewRoleStore создаёт RoleStore поверх пула подключений.
func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{
		UserRoleRepository: NewUserRoleRepository(pool),
		db:                 pool,
	}
}

// ReplaceRoles заменяет набор ролей пользователя в одной транзакции.
// Пустой набор отзывает все роли.
func (s *RoleStore) ReplaceRoles(ctx context.Context, userID string, roles rbac.RoleSet, createdBy string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("ошибка очистки ролей: %w", err)
		}
		repo := NewUserRoleRepository(tx)
		for _, role := range roles.Roles() {
			err := repo.Assign(ctx, &model.RoleBinding{UserID: userID, Role: string(role), CreatedBy: createdBy})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
