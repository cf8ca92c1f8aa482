package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.first(ctx, "phone = ?", strings.TrimSpace(phone))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "username = ?", strings.TrimSpace(username))
}

func (r *userRepository) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, id uuid.UUID, patch UserPatch) (*models.User, error) {
	cols := map[string]any{}
	if patch.Name != nil {
		cols["name"] = *patch.Name
	}
	if patch.Email != nil {
		cols["email"] = *patch.Email
	}
	if patch.Username != nil {
		if *patch.Username == "" {
			cols["username"] = nil
		} else {
			cols["username"] = *patch.Username
		}
	}
	if patch.Password != nil {
		cols["password"] = *patch.Password
	}
	if patch.Role != nil {
		cols["role"] = *patch.Role
	}
	if patch.IsActive != nil {
		cols["is_active"] = *patch.IsActive
	}
	if len(cols) > 0 {
		res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return nil, translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetByID(ctx, id)
}

func (r *userRepository) List(ctx context.Context, role models.Role) ([]models.User, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var users []models.User
	if err := q.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}
