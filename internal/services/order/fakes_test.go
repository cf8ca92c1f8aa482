package order

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/metrics"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/pricing"
)

// memOrders mirrors the gorm store: a guarded update is atomic under mu.
type memOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
	seq    time.Time
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[uuid.UUID]*models.Order{}, seq: time.Unix(1700000000, 0)}
}

func clone(o *models.Order) *models.Order {
	cp := *o
	return &cp
}

func (m *memOrders) Create(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	m.seq = m.seq.Add(time.Second)
	o.CreatedAt = m.seq
	o.UpdatedAt = m.seq
	m.orders[o.ID] = clone(o)
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(o), nil
}

func (m *memOrders) GetByPaymentOrderNo(_ context.Context, no string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentOrderNo != nil && *o.PaymentOrderNo == no {
			return clone(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memOrders) List(_ context.Context, f repository.OrderFilter) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if f.UserID != nil && !o.OwnedBy(*f.UserID) {
			continue
		}
		if f.AssignedTo != nil && !o.AssignedToUser(*f.AssignedTo) {
			continue
		}
		g := repository.OrderGuard{Statuses: f.Statuses, PaymentStatuses: f.PaymentStatuses}
		if !g.Matches(o) {
			continue
		}
		if f.PaymentRequestedBefore != nil && (o.PaymentRequestAt == nil || !o.PaymentRequestAt.Before(*f.PaymentRequestedBefore)) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			out = nil
		} else {
			out = out[f.Offset:]
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memOrders) ConditionalUpdate(_ context.Context, id uuid.UUID, g repository.OrderGuard, p repository.OrderPatch) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !g.Matches(o) {
		return clone(o), repository.ErrGuardMismatch
	}
	p.ApplyTo(o, time.Now())
	return clone(o), nil
}

func (m *memOrders) Stats(_ context.Context) (*repository.OrderStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &repository.OrderStats{
		ByStatus:        map[models.OrderStatus]int64{},
		ByPaymentStatus: map[models.PaymentStatus]int64{},
	}
	for _, o := range m.orders {
		s.ByStatus[o.Status]++
		s.ByPaymentStatus[o.PaymentStatus]++
		if o.PaymentStatus == models.PaymentPaid {
			s.PaidRevenue += o.Amount
		}
		if o.PaymentStatus == models.PaymentRefunded {
			s.RefundedAmount += o.RefundAmount
		}
	}
	return s, nil
}

func (m *memOrders) put(t *testing.T, o *models.Order) {
	t.Helper()
	require.NoError(t, m.Create(context.Background(), o))
}

// memUsers only serves lookups by id.
type memUsers struct {
	repository.UserRepository
	users map[uuid.UUID]*models.User
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type recorder struct {
	mu     sync.Mutex
	events []models.Notification
}

func (r *recorder) Publish(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
}

func (r *recorder) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.events...)
}

func (r *recorder) ofType(t models.NotificationType) []models.Notification {
	var out []models.Notification
	for _, n := range r.all() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	engine    *Engine
	orders    *memOrders
	users     *memUsers
	notes     *recorder
	metrics   *metrics.Metrics
	now       time.Time
	customer  *models.Actor
	other     *models.Actor
	admin     *models.Actor
	cs        *models.Actor
	repairman *models.Actor
	second    *models.Actor
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		orders:    newMemOrders(),
		users:     &memUsers{users: map[uuid.UUID]*models.User{}},
		notes:     &recorder{},
		metrics:   metrics.NewNop(),
		now:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		customer:  &models.Actor{ID: uuid.New(), Role: models.RoleUser},
		other:     &models.Actor{ID: uuid.New(), Role: models.RoleUser},
		admin:     &models.Actor{ID: uuid.New(), Role: models.RoleAdmin},
		cs:        &models.Actor{ID: uuid.New(), Role: models.RoleCustomerService},
		repairman: &models.Actor{ID: uuid.New(), Role: models.RoleRepairman},
		second:    &models.Actor{ID: uuid.New(), Role: models.RoleRepairman},
	}
	for _, a := range []*models.Actor{h.customer, h.other, h.admin, h.cs, h.repairman, h.second} {
		h.users.users[a.ID] = &models.User{ID: a.ID, Role: a.Role, IsActive: true}
	}
	h.engine = NewEngine(Deps{
		Orders:     h.orders,
		Users:      h.users,
		Prices:     pricing.NewTable(pricing.DefaultFallback),
		Notifier:   h.notes,
		PaymentIDs: node,
		Metrics:    h.metrics,
		Log:        zap.NewNop(),
	}, policy, WithClock(func() time.Time { return h.now }))
	return h
}

func defaultPolicy() Policy {
	return Policy{StrictOwnership: true, AllowAnonymous: true}
}

// seed stores an order in the given state, bypassing the engine.
func (h *harness) seed(t *testing.T, owner *models.Actor, status models.OrderStatus, payment models.PaymentStatus) *models.Order {
	t.Helper()
	o := &models.Order{
		DeviceType:    "手机",
		ServiceType:   models.ServiceRepair,
		Urgency:       models.UrgencyLow,
		Status:        status,
		PaymentStatus: payment,
		Amount:        150,
	}
	if owner != nil {
		id := owner.ID
		o.UserID = &id
	}
	h.orders.put(t, o)
	return o
}

var noGuard = repository.OrderGuard{}

func patchAssign(id uuid.UUID) repository.OrderPatch {
	return repository.OrderPatch{AssignedTo: &id}
}
