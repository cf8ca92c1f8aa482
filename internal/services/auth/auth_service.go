package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/utils"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/validation"
)

const codeLength = 6

// CodeStore keeps single-use verification codes (see cache.CodeStore).
type CodeStore interface {
	Put(ctx context.Context, phone, code string, ttl time.Duration) error
	Consume(ctx context.Context, phone, code string) (bool, error)
}

// CodeSender delivers a verification code to the phone owner.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogCodeSender writes codes to the log instead of sending an SMS.
type LogCodeSender struct {
	Log *zap.Logger
}

func (s LogCodeSender) SendCode(_ context.Context, phone, code string) error {
	s.Log.Info("verification code issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}

type Options struct {
	JWTSecret string
	TokenTTL  time.Duration
	CodeTTL   time.Duration
}

type Service struct {
	users  repository.UserRepository
	codes  CodeStore
	sender CodeSender
	opts   Options
	log    *zap.Logger
}

func NewService(users repository.UserRepository, codes CodeStore, sender CodeSender, opts Options, log *zap.Logger) *Service {
	return &Service{users: users, codes: codes, sender: sender, opts: opts, log: log}
}

// Session is what a successful sign-in returns.
type Session struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

type RegisterInput struct {
	Phone    string `json:"phone" validate:"required,cnphone"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"max=100"`
	Username string `json:"username" validate:"omitempty,username"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func (in *RegisterInput) normalize() {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

type LoginInput struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type SendCodeInput struct {
	Phone string `json:"phone" validate:"required,cnphone"`
}

type CodeLoginInput struct {
	Phone string `json:"phone" validate:"required,cnphone"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// Register creates a self-service account with the user role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	u, err := s.createUser(ctx, in, models.RoleUser)
	if err != nil {
		return nil, err
	}
	return s.session(u)
}

// Login accepts either a phone number or a username as identifier.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Identifier = strings.TrimSpace(in.Identifier)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var (
		u   *models.User
		err error
	)
	if validation.ValidPhone(in.Identifier) {
		u, err = s.users.GetByPhone(ctx, in.Identifier)
	} else {
		u, err = s.users.GetByUsername(ctx, in.Identifier)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !utils.CheckPassword(u.Password, in.Password) {
		return nil, apperr.New(apperr.KindInvalidCredential, "incorrect password")
	}
	if !u.IsActive {
		return nil, apperr.New(apperr.KindForbidden, "account disabled")
	}
	return s.session(u)
}

// SendCode issues a fresh verification code for phone and returns its lifetime.
func (s *Service) SendCode(ctx context.Context, in SendCodeInput) (time.Duration, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validation.Struct(in); err != nil {
		return 0, err
	}
	code, err := randomDigits(codeLength)
	if err != nil {
		return 0, err
	}
	if err := s.codes.Put(ctx, in.Phone, code, s.opts.CodeTTL); err != nil {
		return 0, err
	}
	if err := s.sender.SendCode(ctx, in.Phone, code); err != nil {
		return 0, fmt.Errorf("send code: %w", err)
	}
	return s.opts.CodeTTL, nil
}

// LoginWithCode signs in by verification code, creating the account on first contact.
func (s *Service) LoginWithCode(ctx context.Context, in CodeLoginInput) (*Session, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Code = strings.TrimSpace(in.Code)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	ok, err := s.codes.Consume(ctx, in.Phone, in.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindInvalidCredential, "invalid or expired verification code")
	}

	u, err := s.users.GetByPhone(ctx, in.Phone)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		u, err = s.provision(ctx, in.Phone)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !u.IsActive {
		return nil, apperr.New(apperr.KindForbidden, "account disabled")
	}
	return s.session(u)
}

// provision creates a code-only account. Its password is random, so the
// owner has to set one before password login works.
func (s *Service) provision(ctx context.Context, phone string) (*models.User, error) {
	secret, err := randomDigits(16)
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(secret)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{Phone: phone, Name: "用户" + phone[len(phone)-4:], Password: hash, Role: models.RoleUser, IsActive: true}
	err = s.users.Create(ctx, u)
	if errors.Is(err, repository.ErrDuplicate) {
		// lost a race with a concurrent first login
		return s.users.GetByPhone(ctx, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user provisioned by code login", zap.Stringer("user_id", u.ID))
	return u, nil
}

// IssueToken signs a bearer token carrying the user id and role.
func (s *Service) IssueToken(u *models.User) (string, error) {
	token, err := utils.SignJWT(s.opts.JWTSecret, u.ID.String(), string(u.Role), s.opts.TokenTTL)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Authenticate verifies token and resolves the current user record. The role
// on the record wins over the role in the claim.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := utils.ParseJWT(s.opts.JWTSecret, token)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid or expired token")
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid token subject")
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindUnauthenticated, "user no longer exists")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !u.IsActive {
		return nil, apperr.New(apperr.KindUnauthenticated, "account disabled")
	}
	return u, nil
}

func (s *Service) session(u *models.User) (*Session, error) {
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}

func (s *Service) createUser(ctx context.Context, in RegisterInput, role models.Role) (*models.User, error) {
	if err := s.checkUnique(ctx, in.Phone, in.Username, uuid.Nil); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Phone:    in.Phone,
		Name:     in.Name,
		Email:    in.Email,
		Password: hash,
		Role:     role,
		IsActive: true,
	}
	if in.Username != "" {
		username := in.Username
		u.Username = &username
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.New(apperr.KindDuplicateIdentity, "phone or username already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// checkUnique names the colliding field up front. The unique indexes still
// decide under concurrent registration.
func (s *Service) checkUnique(ctx context.Context, phone, username string, self uuid.UUID) error {
	if phone != "" {
		u, err := s.users.GetByPhone(ctx, phone)
		if err == nil && u.ID != self {
			return apperr.New(apperr.KindDuplicateIdentity, "phone already registered")
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("find user: %w", err)
		}
	}
	if username != "" {
		u, err := s.users.GetByUsername(ctx, username)
		if err == nil && u.ID != self {
			return apperr.New(apperr.KindDuplicateIdentity, "username already taken")
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("find user: %w", err)
		}
	}
	return nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
