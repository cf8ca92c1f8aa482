package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/cache"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/utils"
)

const testSecret = "test-secret-0123456789"

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[uuid.UUID]*models.User{}}
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.Phone == u.Phone || (u.Username != nil && e.Username != nil && *e.Username == *u.Username) {
			return repository.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *memUsers) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Phone == phone })
}

func (m *memUsers) GetByUsername(_ context.Context, name string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username != nil && *u.Username == name })
}

func (m *memUsers) Update(_ context.Context, id uuid.UUID, p repository.UserPatch) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Username != nil && *p.Username != "" {
		for _, e := range m.users {
			if e.ID != id && e.Username != nil && *e.Username == *p.Username {
				return nil, repository.ErrDuplicate
			}
		}
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Username != nil {
		if *p.Username == "" {
			u.Username = nil
		} else {
			name := *p.Username
			u.Username = &name
		}
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) List(_ context.Context, role models.Role) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

type recordingSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (r *recordingSender) SendCode(_ context.Context, phone, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[phone] = code
	return nil
}

func (r *recordingSender) last(phone string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[phone]
}

type fixture struct {
	svc    *Service
	users  *memUsers
	sender *recordingSender
	redis  *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	users := newMemUsers()
	sender := &recordingSender{codes: map[string]string{}}
	svc := NewService(users, cache.NewCodeStore(rdb), sender, Options{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
		CodeTTL:   5 * time.Minute,
	}, zap.NewNop())
	return &fixture{svc: svc, users: users, sender: sender, redis: mr}
}

func (f *fixture) register(t *testing.T, phone, password string) *Session {
	t.Helper()
	s, err := f.svc.Register(context.Background(), RegisterInput{Phone: phone, Password: password, Name: "Tester"})
	require.NoError(t, err)
	return s
}

func (f *fixture) staff(t *testing.T, role models.Role) *models.Actor {
	t.Helper()
	u := &models.User{Phone: "139" + uuid.NewString()[:8], Role: role, IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.Actor()
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	s := f.register(t, "13800000001", "secret1")

	assert.Equal(t, models.RoleUser, s.User.Role)
	assert.NotEqual(t, "secret1", s.User.Password)
	assert.True(t, utils.CheckPassword(s.User.Password, "secret1"))

	claims, err := utils.ParseJWT(testSecret, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID.String(), claims.UserID)
	assert.Equal(t, "user", claims.Role)
}

func TestRegister_DuplicatePhone(t *testing.T) {
	f := newFixture(t)
	f.register(t, "13800000001", "secret1")

	_, err := f.svc.Register(context.Background(), RegisterInput{Phone: "13800000001", Password: "other12"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterInput{Phone: "13800000001", Password: "secret1", Username: "alice"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Phone: "13800000002", Password: "secret1", Username: "alice"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)
}

func TestRegister_ValidationListsEveryField(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{Phone: "12345", Password: "123", Email: "nope"})

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "phone")
	assert.Contains(t, ae.Fields, "password")
	assert.Contains(t, ae.Fields, "email")
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterInput{Phone: "13800000001", Password: "secret1", Username: "bob"})
	require.NoError(t, err)

	t.Run("by phone", func(t *testing.T) {
		s, err := f.svc.Login(ctx, LoginInput{Identifier: "13800000001", Password: "secret1"})
		require.NoError(t, err)
		assert.NotEmpty(t, s.Token)
	})
	t.Run("by username", func(t *testing.T) {
		s, err := f.svc.Login(ctx, LoginInput{Identifier: "bob", Password: "secret1"})
		require.NoError(t, err)
		assert.Equal(t, "13800000001", s.User.Phone)
	})
	t.Run("unknown identifier", func(t *testing.T) {
		_, err := f.svc.Login(ctx, LoginInput{Identifier: "13899999999", Password: "secret1"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
	t.Run("wrong password", func(t *testing.T) {
		_, err := f.svc.Login(ctx, LoginInput{Identifier: "bob", Password: "wrong"})
		assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
	})
}

func TestLoginWithCode_ProvisionsOnFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ttl, err := f.svc.SendCode(ctx, SendCodeInput{Phone: "13700000000"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)
	code := f.sender.last("13700000000")
	require.Len(t, code, 6)

	s, err := f.svc.LoginWithCode(ctx, CodeLoginInput{Phone: "13700000000", Code: code})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, s.User.Role)

	stored, err := f.users.GetByPhone(ctx, "13700000000")
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, stored.ID)

	// single use
	_, err = f.svc.LoginWithCode(ctx, CodeLoginInput{Phone: "13700000000", Code: code})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestLoginWithCode_ExistingUserAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "13800000001", "secret1")

	_, err := f.svc.SendCode(ctx, SendCodeInput{Phone: "13800000001"})
	require.NoError(t, err)
	code := f.sender.last("13800000001")

	s, err := f.svc.LoginWithCode(ctx, CodeLoginInput{Phone: "13800000001", Code: code})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, s.User.ID)

	_, err = f.svc.SendCode(ctx, SendCodeInput{Phone: "13800000001"})
	require.NoError(t, err)
	f.redis.FastForward(6 * time.Minute)
	_, err = f.svc.LoginWithCode(ctx, CodeLoginInput{Phone: "13800000001", Code: f.sender.last("13800000001")})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestAdminRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.staff(t, models.RoleAdmin)
	cs := f.staff(t, models.RoleCustomerService)
	in := AdminCreateUserInput{
		RegisterInput: RegisterInput{Phone: "13600000000", Password: "secret1", Name: "Wang"},
		Role:          "repairman",
	}

	_, err := f.svc.AdminRegister(ctx, cs, in)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.AdminRegister(ctx, nil, in)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	u, err := f.svc.AdminRegister(ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, models.RoleRepairman, u.Role)

	_, err = f.svc.AdminRegister(ctx, admin, in)
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)

	in.Phone = "13600000001"
	in.Role = "user"
	_, err = f.svc.AdminRegister(ctx, admin, in)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "13800000001", "secret1")

	u, err := f.svc.Authenticate(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, u.ID)

	for name, token := range map[string]string{
		"empty":     "",
		"malformed": "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Authenticate(ctx, token)
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		forged, err := utils.SignJWT("another-secret-0123456", s.User.ID.String(), "admin", time.Hour)
		require.NoError(t, err)
		_, err = f.svc.Authenticate(ctx, forged)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	})
	t.Run("expired", func(t *testing.T) {
		old, err := utils.SignJWT(testSecret, s.User.ID.String(), "user", -time.Minute)
		require.NoError(t, err)
		_, err = f.svc.Authenticate(ctx, old)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	})
	t.Run("deleted user", func(t *testing.T) {
		ghost, err := utils.SignJWT(testSecret, uuid.NewString(), "user", time.Hour)
		require.NoError(t, err)
		_, err = f.svc.Authenticate(ctx, ghost)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	})
	t.Run("record role wins", func(t *testing.T) {
		_, err := f.users.Update(ctx, s.User.ID, repository.UserPatch{Role: ptr(models.RoleRepairman)})
		require.NoError(t, err)
		u, err := f.svc.Authenticate(ctx, s.Token)
		require.NoError(t, err)
		assert.Equal(t, models.RoleRepairman, u.Role)
	})
}

func TestProfileAndPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "13800000001", "secret1")
	actor := s.User.Actor()

	u, err := f.svc.UpdateProfile(ctx, actor, ProfileInput{Name: ptr("  Li  "), Username: ptr("lee")})
	require.NoError(t, err)
	assert.Equal(t, "Li", u.Name)
	require.NotNil(t, u.Username)

	u, err = f.svc.UpdateProfile(ctx, actor, ProfileInput{Username: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, u.Username)

	err = f.svc.ChangePassword(ctx, actor, ChangePasswordInput{OldPassword: "bad", NewPassword: "newpass"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)

	require.NoError(t, f.svc.ChangePassword(ctx, actor, ChangePasswordInput{OldPassword: "secret1", NewPassword: "newpass"}))
	_, err = f.svc.Login(ctx, LoginInput{Identifier: "13800000001", Password: "newpass"})
	assert.NoError(t, err)
}

func TestUpdateProfile_RejectsBadUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.register(t, "13800000001", "secret1").User.Actor()

	for _, name := range []string{"x", "lee wang", "13900000002"} {
		_, err := f.svc.UpdateProfile(ctx, actor, ProfileInput{Username: ptr(name)})
		var ae *apperr.Error
		require.ErrorAs(t, err, &ae, name)
		assert.Equal(t, apperr.KindValidation, ae.Kind, name)
		assert.Contains(t, ae.Fields, "username", name)
	}

	_, err := f.svc.Register(ctx, RegisterInput{Phone: "13800000003", Password: "secret1", Username: "13900000002"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAdminUserManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.staff(t, models.RoleAdmin)
	cs := f.staff(t, models.RoleCustomerService)
	s := f.register(t, "13800000001", "secret1")

	_, err := f.svc.ListUsers(ctx, cs, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	u, err := f.svc.AdminUpdateUser(ctx, admin, s.User.ID, AdminUpdateUserInput{Role: ptr("repairman")})
	require.NoError(t, err)
	assert.Equal(t, models.RoleRepairman, u.Role)

	repairmen, err := f.svc.ListRepairmen(ctx, cs)
	require.NoError(t, err)
	require.Len(t, repairmen, 1)
	assert.Equal(t, s.User.ID, repairmen[0].ID)

	_, err = f.svc.AdminUpdateUser(ctx, admin, s.User.ID, AdminUpdateUserInput{IsActive: ptr(false)})
	require.NoError(t, err)
	repairmen, err = f.svc.ListRepairmen(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, repairmen)

	_, err = f.svc.AdminUpdateUser(ctx, admin, uuid.New(), AdminUpdateUserInput{Name: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	users, err := f.svc.ListUsers(ctx, admin, "admin")
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureAdmin(ctx, "13900000000", "adminpass"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "13900000000", "adminpass"))

	admins, err := f.users.List(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

func ptr[T any](v T) *T { return &v }
