package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/utils"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/validation"
)

type AdminCreateUserInput struct {
	RegisterInput
	Role string `json:"role" validate:"required,oneof=admin customer_service repairman"`
}

type ProfileInput struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Username *string `json:"username" validate:"omitempty,username"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

type AdminUpdateUserInput struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty,oneof=user repairman customer_service admin"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password" validate:"omitempty,min=6,max=72"`
}

// AdminRegister creates a staff account. Only admins may call it.
func (s *Service) AdminRegister(ctx context.Context, requester *models.Actor, in AdminCreateUserInput) (*models.User, error) {
	if requester == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if requester.Role != models.RoleAdmin {
		return nil, apperr.New(apperr.KindForbidden, "only admins can create staff accounts")
	}
	in.normalize()
	in.Role = strings.TrimSpace(in.Role)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	role, _ := models.ParseRole(in.Role)
	u, err := s.createUser(ctx, in.RegisterInput, role)
	if err != nil {
		return nil, err
	}
	s.log.Info("staff account created",
		zap.Stringer("user_id", u.ID),
		zap.String("role", string(role)),
		zap.Stringer("by", requester.ID),
	)
	return u, nil
}

func (s *Service) Me(ctx context.Context, actor *models.Actor) (*models.User, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	return s.getUser(ctx, actor.ID)
}

// UpdateProfile edits the caller's own name, email and username. An empty
// username clears it.
func (s *Service) UpdateProfile(ctx context.Context, actor *models.Actor, in ProfileInput) (*models.User, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	trimPtr(in.Name)
	trimPtr(in.Email)
	trimPtr(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Username != nil && *in.Username != "" {
		if err := s.checkUnique(ctx, "", *in.Username, actor.ID); err != nil {
			return nil, err
		}
	}
	patch := repository.UserPatch{Name: in.Name, Email: in.Email, Username: in.Username}
	if patch.Empty() {
		return s.getUser(ctx, actor.ID)
	}
	return s.update(ctx, actor.ID, patch)
}

func (s *Service) ChangePassword(ctx context.Context, actor *models.Actor, in ChangePasswordInput) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	u, err := s.getUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(u.Password, in.OldPassword) {
		return apperr.New(apperr.KindInvalidCredential, "current password is incorrect")
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.update(ctx, actor.ID, repository.UserPatch{Password: &hash})
	return err
}

func (s *Service) ListUsers(ctx context.Context, actor *models.Actor, role string) ([]models.User, error) {
	if err := requireCap(actor, models.CapManageUsers); err != nil {
		return nil, err
	}
	var filter models.Role
	if role != "" {
		r, ok := models.ParseRole(role)
		if !ok {
			fields := apperr.FieldErrors{}
			fields.Add("role", "role must be one of: user repairman customer_service admin")
			return nil, apperr.Validation(fields)
		}
		filter = r
	}
	return s.users.List(ctx, filter)
}

// AdminUpdateUser is the only path that can change a role.
func (s *Service) AdminUpdateUser(ctx context.Context, actor *models.Actor, id uuid.UUID, in AdminUpdateUserInput) (*models.User, error) {
	if err := requireCap(actor, models.CapManageUsers); err != nil {
		return nil, err
	}
	trimPtr(in.Name)
	trimPtr(in.Email)
	trimPtr(in.Role)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	patch := repository.UserPatch{Name: in.Name, Email: in.Email, IsActive: in.IsActive}
	if in.Role != nil {
		role, _ := models.ParseRole(*in.Role)
		patch.Role = &role
	}
	if in.Password != nil {
		hash, err := utils.HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		patch.Password = &hash
	}
	if patch.Empty() {
		return s.getUser(ctx, id)
	}
	u, err := s.update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.log.Info("user updated by admin", zap.Stringer("user_id", id), zap.Stringer("by", actor.ID))
	return u, nil
}

// ListRepairmen returns the active repairmen staff can assign orders to.
func (s *Service) ListRepairmen(ctx context.Context, actor *models.Actor) ([]models.User, error) {
	if err := requireCap(actor, models.CapListRepairmen); err != nil {
		return nil, err
	}
	all, err := s.users.List(ctx, models.RoleRepairman)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, u := range all {
		if u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

// EnsureAdmin seeds the bootstrap admin account when phone is unused.
func (s *Service) EnsureAdmin(ctx context.Context, phone, password string) error {
	_, err := s.users.GetByPhone(ctx, phone)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("find admin: %w", err)
	}
	in := RegisterInput{Phone: phone, Password: password, Name: "admin"}
	if err := validation.Struct(in); err != nil {
		return err
	}
	u, err := s.createUser(ctx, in, models.RoleAdmin)
	if err != nil {
		return err
	}
	s.log.Info("bootstrap admin created", zap.Stringer("user_id", u.ID))
	return nil
}

func (s *Service) getUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Service) update(ctx context.Context, id uuid.UUID, patch repository.UserPatch) (*models.User, error) {
	u, err := s.users.Update(ctx, id, patch)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperr.New(apperr.KindDuplicateIdentity, "username already taken")
	case err != nil:
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func requireCap(actor *models.Actor, c models.Capability) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if !actor.Role.Can(c) {
		return apperr.ErrForbidden
	}
	return nil
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
