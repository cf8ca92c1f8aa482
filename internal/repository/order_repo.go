package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *orderRepository) GetByPaymentOrderNo(ctx context.Context, paymentOrderNo string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).Where("payment_order_no = ?", paymentOrderNo).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *orderRepository) List(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.AssignedTo != nil {
		q = q.Where("assigned_to = ?", *f.AssignedTo)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if len(f.PaymentStatuses) > 0 {
		q = q.Where("payment_status IN ?", f.PaymentStatuses)
	}
	if f.PaymentRequestedBefore != nil {
		q = q.Where("payment_request_at < ?", *f.PaymentRequestedBefore)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var orders []models.Order
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// ConditionalUpdate applies patch only when the row still satisfies guard,
// in a single UPDATE ... WHERE ... RETURNING statement.
func (r *orderRepository) ConditionalUpdate(ctx context.Context, id uuid.UUID, guard OrderGuard, patch OrderPatch) (*models.Order, error) {
	var updated []models.Order
	res := r.db.WithContext(ctx).
		Model(&updated).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Scopes(guard.scope).
		Updates(patch.columns(time.Now()))
	if res.Error != nil {
		return nil, fmt.Errorf("conditional update order %s: %w", id, translate(res.Error))
	}
	if res.RowsAffected > 0 && len(updated) > 0 {
		return &updated[0], nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, ErrGuardMismatch
}

func (r *orderRepository) Stats(ctx context.Context) (*OrderStats, error) {
	stats := &OrderStats{
		ByStatus:        map[models.OrderStatus]int64{},
		ByPaymentStatus: map[models.PaymentStatus]int64{},
	}

	var byStatus []struct {
		Status models.OrderStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.Order{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("order stats by status: %w", err)
	}
	for _, row := range byStatus {
		stats.ByStatus[row.Status] = row.Count
	}

	var byPayment []struct {
		PaymentStatus models.PaymentStatus
		Count         int64
		Amount        int64
		Refunded      int64
	}
	if err := r.db.WithContext(ctx).Model(&models.Order{}).
		Select("payment_status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(refund_amount), 0) AS refunded").
		Group("payment_status").Scan(&byPayment).Error; err != nil {
		return nil, fmt.Errorf("order stats by payment: %w", err)
	}
	for _, row := range byPayment {
		stats.ByPaymentStatus[row.PaymentStatus] = row.Count
		switch row.PaymentStatus {
		case models.PaymentPaid:
			stats.PaidRevenue += row.Amount
		case models.PaymentRefunded:
			stats.PaidRevenue += row.Amount - row.Refunded
			stats.RefundedAmount += row.Refunded
		}
	}
	return stats, nil
}

func (g OrderGuard) scope(tx *gorm.DB) *gorm.DB {
	if len(g.Statuses) > 0 {
		tx = tx.Where("status IN ?", g.Statuses)
	}
	if len(g.PaymentStatuses) > 0 {
		tx = tx.Where("payment_status IN ?", g.PaymentStatuses)
	}
	if g.AssignedTo != nil {
		tx = tx.Where("assigned_to = ?", *g.AssignedTo)
	}
	if g.Unassigned {
		tx = tx.Where("assigned_to IS NULL")
	}
	if g.Unrated {
		tx = tx.Where("rating_score IS NULL")
	}
	return tx
}

func (p OrderPatch) columns(now time.Time) map[string]any {
	cols := map[string]any{"updated_at": now}
	switch {
	case p.Status != nil:
		cols["status"] = *p.Status
	case p.PromotePendingTo != nil:
		cols["status"] = gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", models.StatusPending, *p.PromotePendingTo)
	}
	set := func(col string, v any, ok bool) {
		if ok {
			cols[col] = v
		}
	}
	set("assigned_to", deref(p.AssignedTo), p.AssignedTo != nil)
	set("repair_notes", deref(p.RepairNotes), p.RepairNotes != nil)
	set("rating_score", deref(p.RatingScore), p.RatingScore != nil)
	set("rating_comment", deref(p.RatingComment), p.RatingComment != nil)
	set("rated_at", deref(p.RatedAt), p.RatedAt != nil)
	set("payment_status", deref(p.PaymentStatus), p.PaymentStatus != nil)
	set("payment_method", deref(p.PaymentMethod), p.PaymentMethod != nil)
	set("payment_order_no", deref(p.PaymentOrderNo), p.PaymentOrderNo != nil)
	set("payment_request_at", deref(p.PaymentRequestAt), p.PaymentRequestAt != nil)
	set("transaction_id", deref(p.TransactionID), p.TransactionID != nil)
	set("payment_time", deref(p.PaymentTime), p.PaymentTime != nil)
	set("payment_fail_reason", deref(p.PaymentFailReason), p.PaymentFailReason != nil)
	set("payment_callback", datatypes.JSON(p.PaymentCallback), p.PaymentCallback != nil)
	set("refund_amount", deref(p.RefundAmount), p.RefundAmount != nil)
	set("refund_reason", deref(p.RefundReason), p.RefundReason != nil)
	set("refund_time", deref(p.RefundTime), p.RefundTime != nil)
	set("completed_at", deref(p.CompletedAt), p.CompletedAt != nil)
	set("cancelled_at", deref(p.CancelledAt), p.CancelledAt != nil)
	return cols
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// IsGuardMismatch reports whether err is a rejected conditional update.
func IsGuardMismatch(err error) bool {
	return errors.Is(err, ErrGuardMismatch)
}
