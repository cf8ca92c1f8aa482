package repository

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
	// ErrGuardMismatch means a conditional update matched no row because the
	// record no longer satisfies the guard. The current record is returned
	// alongside it.
	ErrGuardMismatch = errors.New("conditional update guard did not match")
)

// UserRepository is the identity store. Phone and username are unique.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, patch UserPatch) (*models.User, error)
	List(ctx context.Context, role models.Role) ([]models.User, error)
}

// UserPatch holds the columns to change; nil fields are left untouched.
// An empty Username clears it.
type UserPatch struct {
	Name     *string
	Email    *string
	Username *string
	Password *string
	Role     *models.Role
	IsActive *bool
}

func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Username == nil && p.Password == nil && p.Role == nil && p.IsActive == nil
}

// OrderRepository is the order store. Every lifecycle mutation goes through
// ConditionalUpdate so that it is a single atomic write.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByPaymentOrderNo(ctx context.Context, paymentOrderNo string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	ConditionalUpdate(ctx context.Context, id uuid.UUID, guard OrderGuard, patch OrderPatch) (*models.Order, error)
	Stats(ctx context.Context) (*OrderStats, error)
}

type OrderFilter struct {
	UserID          *uuid.UUID
	AssignedTo      *uuid.UUID
	Statuses        []models.OrderStatus
	PaymentStatuses []models.PaymentStatus
	// PaymentRequestedBefore selects orders whose payment was initiated before the instant.
	PaymentRequestedBefore *time.Time
	Limit                  int
	Offset                 int
}

type OrderStats struct {
	ByStatus        map[models.OrderStatus]int64   `json:"by_status"`
	ByPaymentStatus map[models.PaymentStatus]int64 `json:"by_payment_status"`
	PaidRevenue     int64                          `json:"paid_revenue"`
	RefundedAmount  int64                          `json:"refunded_amount"`
}

// OrderGuard is the precondition of a conditional update. Zero-valued
// fields do not constrain.
type OrderGuard struct {
	Statuses        []models.OrderStatus
	PaymentStatuses []models.PaymentStatus
	AssignedTo      *uuid.UUID
	Unassigned      bool
	Unrated         bool
}

// Matches evaluates the guard against an in-memory order.
func (g OrderGuard) Matches(o *models.Order) bool {
	if len(g.Statuses) > 0 && !slices.Contains(g.Statuses, o.Status) {
		return false
	}
	if len(g.PaymentStatuses) > 0 && !slices.Contains(g.PaymentStatuses, o.PaymentStatus) {
		return false
	}
	if g.AssignedTo != nil && !o.AssignedToUser(*g.AssignedTo) {
		return false
	}
	if g.Unassigned && o.AssignedTo != nil {
		return false
	}
	if g.Unrated && o.Rated() {
		return false
	}
	return true
}

// OrderPatch lists the columns a conditional update writes.
type OrderPatch struct {
	Status *models.OrderStatus
	// PromotePendingTo moves the status only when it is currently pending.
	// Ignored when Status is set.
	PromotePendingTo *models.OrderStatus
	AssignedTo       *uuid.UUID
	RepairNotes      *string

	RatingScore   *int
	RatingComment *string
	RatedAt       *time.Time

	PaymentStatus     *models.PaymentStatus
	PaymentMethod     *string
	PaymentOrderNo    *string
	PaymentRequestAt  *time.Time
	TransactionID     *string
	PaymentTime       *time.Time
	PaymentFailReason *string
	PaymentCallback   []byte

	RefundAmount *int64
	RefundReason *string
	RefundTime   *time.Time

	CompletedAt *time.Time
	CancelledAt *time.Time
}

// ApplyTo writes the patch into an in-memory order.
func (p OrderPatch) ApplyTo(o *models.Order, now time.Time) {
	switch {
	case p.Status != nil:
		o.Status = *p.Status
	case p.PromotePendingTo != nil && o.Status == models.StatusPending:
		o.Status = *p.PromotePendingTo
	}
	if p.AssignedTo != nil {
		id := *p.AssignedTo
		o.AssignedTo = &id
	}
	if p.RepairNotes != nil {
		o.RepairNotes = *p.RepairNotes
	}
	if p.RatingScore != nil {
		score := *p.RatingScore
		o.RatingScore = &score
	}
	if p.RatingComment != nil {
		o.RatingComment = *p.RatingComment
	}
	if p.RatedAt != nil {
		o.RatedAt = timePtr(*p.RatedAt)
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentMethod != nil {
		o.PaymentMethod = *p.PaymentMethod
	}
	if p.PaymentOrderNo != nil {
		no := *p.PaymentOrderNo
		o.PaymentOrderNo = &no
	}
	if p.PaymentRequestAt != nil {
		o.PaymentRequestAt = timePtr(*p.PaymentRequestAt)
	}
	if p.TransactionID != nil {
		o.TransactionID = *p.TransactionID
	}
	if p.PaymentTime != nil {
		o.PaymentTime = timePtr(*p.PaymentTime)
	}
	if p.PaymentFailReason != nil {
		o.PaymentFailReason = *p.PaymentFailReason
	}
	if p.PaymentCallback != nil {
		o.PaymentCallback = append([]byte(nil), p.PaymentCallback...)
	}
	if p.RefundAmount != nil {
		o.RefundAmount = *p.RefundAmount
	}
	if p.RefundReason != nil {
		o.RefundReason = *p.RefundReason
	}
	if p.RefundTime != nil {
		o.RefundTime = timePtr(*p.RefundTime)
	}
	if p.CompletedAt != nil {
		o.CompletedAt = timePtr(*p.CompletedAt)
	}
	if p.CancelledAt != nil {
		o.CancelledAt = timePtr(*p.CancelledAt)
	}
	o.UpdatedAt = now
}

func timePtr(t time.Time) *time.Time {
	return &t
}
