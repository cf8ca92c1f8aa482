package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/metrics"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/pricing"
)

// Notifier receives lifecycle events once the store write has succeeded.
// Implementations must not block.
type Notifier interface {
	Publish(n models.Notification)
}

// IDGenerator allocates payment order numbers. *snowflake.Node satisfies it.
type IDGenerator interface {
	Generate() snowflake.ID
}

// Policy holds the ownership switches for cancel and rate.
type Policy struct {
	// StrictOwnership reserves ownerless orders to staff for authenticated callers.
	StrictOwnership bool
	// AllowAnonymous lets callers without a credential create ownerless
	// orders and cancel or rate them.
	AllowAnonymous bool
}

type Deps struct {
	Orders     repository.OrderRepository
	Users      repository.UserRepository
	Prices     *pricing.Table
	Notifier   Notifier
	PaymentIDs IDGenerator
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

// Engine owns every legal transition of an order. Each mutation is one
// conditional write against the store; notifications go out after it.
type Engine struct {
	orders   repository.OrderRepository
	users    repository.UserRepository
	prices   *pricing.Table
	notifier Notifier
	ids      IDGenerator
	metrics  *metrics.Metrics
	log      *zap.Logger
	policy   Policy
	now      func() time.Time
}

type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(d Deps, p Policy, opts ...Option) *Engine {
	e := &Engine{
		orders:   d.Orders,
		users:    d.Users,
		prices:   d.Prices,
		notifier: d.Notifier,
		ids:      d.PaymentIDs,
		metrics:  d.Metrics,
		log:      d.Log,
		policy:   p,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) observe(op string, err error) {
	result := "success"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	e.metrics.OrderTransitions.WithLabelValues(op, result).Inc()
	if err != nil && apperr.KindOf(err) == apperr.KindInternal {
		e.log.Error("order operation failed", zap.String("op", op), zap.Error(err))
	}
}

func (e *Engine) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := e.orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

// update runs a conditional write. On a guard mismatch it returns the current
// order together with repository.ErrGuardMismatch so callers can classify.
func (e *Engine) update(ctx context.Context, id uuid.UUID, g repository.OrderGuard, p repository.OrderPatch) (*models.Order, error) {
	o, err := e.orders.ConditionalUpdate(ctx, id, g, p)
	switch {
	case err == nil:
		return o, nil
	case errors.Is(err, repository.ErrGuardMismatch):
		return o, err
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	return nil, fmt.Errorf("update order: %w", err)
}

// canView is the read visibility rule: staff see everything, repairmen
// their assignments, customers their own orders.
func canView(actor *models.Actor, o *models.Order) bool {
	switch {
	case actor == nil:
		return false
	case actor.Role.Can(models.CapViewAllOrders):
		return true
	case actor.Role == models.RoleRepairman:
		return o.AssignedToUser(actor.ID)
	}
	return o.OwnedBy(actor.ID)
}

func requireCap(actor *models.Actor, c models.Capability) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if !actor.Role.Can(c) {
		return apperr.New(apperr.KindForbidden, "role %s may not perform this action", actor.Role)
	}
	return nil
}

// checkOwnerAction gates cancel and rate. Staff pass when staffAllowed.
// Ownerless orders are open to anonymous callers only when AllowAnonymous is
// set, and to signed-in customers only when StrictOwnership is off.
func (e *Engine) checkOwnerAction(actor *models.Actor, o *models.Order, c models.Capability, staffAllowed bool) error {
	if actor == nil {
		if o.UserID == nil && e.policy.AllowAnonymous {
			return nil
		}
		return apperr.ErrUnauthenticated
	}
	if err := requireCap(actor, c); err != nil {
		return err
	}
	switch {
	case staffAllowed && actor.Role.IsStaff():
		return nil
	case o.OwnedBy(actor.ID):
		return nil
	case o.UserID == nil && !e.policy.StrictOwnership:
		return nil
	case canView(actor, o):
		return apperr.New(apperr.KindForbidden, "only the order owner may do this")
	}
	return apperr.New(apperr.KindNotFound, "order not found")
}

func invalidTransition(o *models.Order, action string) error {
	return apperr.New(apperr.KindInvalidTransition, "cannot %s an order in status %s (payment %s)", action, o.Status, o.PaymentStatus)
}

func (e *Engine) notify(t models.NotificationType, o *models.Order, msg string, channels ...string) {
	seen := make(map[string]bool, len(channels))
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch != "" && !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return
	}
	e.notifier.Publish(models.Notification{
		Type:        t,
		Message:     msg,
		OrderID:     o.ID,
		Status:      o.Status,
		StatusLabel: o.Status.Label(),
		Timestamp:   e.now(),
		Channels:    out,
	})
}

func ownerChannel(o *models.Order) string {
	if o.UserID == nil {
		return ""
	}
	return models.UserChannel(*o.UserID)
}

func repairmanChannel(o *models.Order) string {
	if o.AssignedTo == nil {
		return ""
	}
	return models.UserChannel(*o.AssignedTo)
}

func withStaff(channels ...string) []string {
	return append(channels, models.StaffChannels()...)
}

// statusAudience is who hears about a status change: owner, assignee, staff.
func statusAudience(o *models.Order) []string {
	return withStaff(ownerChannel(o), repairmanChannel(o))
}
