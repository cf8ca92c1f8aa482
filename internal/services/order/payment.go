package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/validation"
)

const (
	DefaultPaymentMethod = "alipay"
	paymentNoPrefix      = "PAY"
	expiryBatch          = 100
)

var payableStatuses = []models.OrderStatus{
	models.StatusPending, models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted,
}

type PayInput struct {
	Method string `json:"method" validate:"omitempty,oneof=alipay wechat bank_card"`
}

// InitiatePayment moves payment from unpaid to pending and allocates the
// payment order number the gateway will call back with.
func (e *Engine) InitiatePayment(ctx context.Context, actor *models.Actor, id uuid.UUID, in PayInput) (o *models.Order, err error) {
	defer func() { e.observe("initiate_payment", err) }()

	if err := requireCap(actor, models.CapPayOrder); err != nil {
		return nil, err
	}
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Method == "" {
		in.Method = DefaultPaymentMethod
	}

	o, err = e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(actor.ID) {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	if o.Amount <= 0 {
		return nil, apperr.New(apperr.KindInvalidAmount, "order has nothing to pay")
	}

	next := models.PaymentPending
	no := paymentNoPrefix + e.ids.Generate().String()
	now := e.now()
	o, err = e.update(ctx, id,
		repository.OrderGuard{
			Statuses:        payableStatuses,
			PaymentStatuses: models.PaymentSourcesFor(models.PaymentPending),
		},
		repository.OrderPatch{
			PaymentStatus:    &next,
			PaymentMethod:    &in.Method,
			PaymentOrderNo:   &no,
			PaymentRequestAt: &now,
		},
	)
	if errors.Is(err, repository.ErrGuardMismatch) {
		return nil, invalidTransition(o, "pay for")
	}
	if err != nil {
		return nil, err
	}
	e.log.Info("payment initiated", zap.Stringer("order_id", o.ID), zap.String("payment_order_no", no))
	return o, nil
}

type PaymentResult struct {
	PaymentOrderNo string
	TransactionID  string
	Reason         string
	// Raw is the gateway payload kept on the order for audit.
	Raw []byte
}

// MarkPaid records a successful gateway callback. A still-pending order is
// advanced to in_progress; any other status is left alone. A repeated
// callback for the same transaction returns the order unchanged.
func (e *Engine) MarkPaid(ctx context.Context, res PaymentResult) (o *models.Order, err error) {
	defer func() { e.observe("mark_paid", err) }()

	o, err = e.byPaymentNo(ctx, res.PaymentOrderNo)
	if err != nil {
		return nil, err
	}

	paid := models.PaymentPaid
	promote := models.StatusInProgress
	now := e.now()
	prev := o.Status
	o, err = e.update(ctx, o.ID,
		repository.OrderGuard{PaymentStatuses: models.PaymentSourcesFor(paid)},
		repository.OrderPatch{
			PaymentStatus:    &paid,
			PaymentTime:      &now,
			TransactionID:    &res.TransactionID,
			PaymentCallback:  res.Raw,
			PromotePendingTo: &promote,
		},
	)
	if errors.Is(err, repository.ErrGuardMismatch) {
		if o.PaymentStatus == models.PaymentPaid && o.TransactionID == res.TransactionID {
			return o, nil
		}
		return nil, invalidTransition(o, "mark paid")
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("payment succeeded",
		zap.Stringer("order_id", o.ID),
		zap.String("payment_order_no", res.PaymentOrderNo),
		zap.String("status_before", string(prev)),
		zap.String("status_after", string(o.Status)),
	)
	e.notify(models.NotifyPaymentSuccess, o, fmt.Sprintf("支付成功，金额 %d 元", o.Amount), ownerChannel(o))
	e.notify(models.NotifyNewPaidOrder, o, "新的已支付订单", models.StaffChannels()...)
	return o, nil
}

// MarkFailed records a failed or expired payment. The order status is not touched.
func (e *Engine) MarkFailed(ctx context.Context, res PaymentResult) (o *models.Order, err error) {
	defer func() { e.observe("mark_failed", err) }()

	o, err = e.byPaymentNo(ctx, res.PaymentOrderNo)
	if err != nil {
		return nil, err
	}

	failed := models.PaymentFailed
	o, err = e.update(ctx, o.ID,
		repository.OrderGuard{PaymentStatuses: models.PaymentSourcesFor(failed)},
		repository.OrderPatch{
			PaymentStatus:     &failed,
			PaymentFailReason: &res.Reason,
			PaymentCallback:   res.Raw,
		},
	)
	if errors.Is(err, repository.ErrGuardMismatch) {
		if o.PaymentStatus == models.PaymentFailed {
			return o, nil
		}
		return nil, invalidTransition(o, "mark failed")
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("payment failed", zap.Stringer("order_id", o.ID), zap.String("reason", res.Reason))
	e.notify(models.NotifyPaymentFailed, o, "支付失败："+res.Reason, ownerChannel(o))
	return o, nil
}

type RefundInput struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason" validate:"max=500"`
}

// Refund returns money on a paid order. A full refund also cancels it,
// whatever its status.
func (e *Engine) Refund(ctx context.Context, actor *models.Actor, id uuid.UUID, in RefundInput) (o *models.Order, err error) {
	defer func() { e.observe("refund", err) }()

	if err := requireCap(actor, models.CapRefundOrder); err != nil {
		return nil, err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	o, err = e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != models.PaymentPaid {
		return nil, invalidTransition(o, "refund")
	}
	if in.Amount <= 0 || in.Amount > o.Amount {
		return nil, apperr.New(apperr.KindInvalidAmount, "refund amount must be between 1 and %d", o.Amount)
	}

	refunded := models.PaymentRefunded
	now := e.now()
	patch := repository.OrderPatch{
		PaymentStatus: &refunded,
		RefundAmount:  &in.Amount,
		RefundReason:  &in.Reason,
		RefundTime:    &now,
	}
	if in.Amount == o.Amount {
		cancelled := models.StatusCancelled
		patch.Status = &cancelled
		patch.CancelledAt = &now
	}
	o, err = e.update(ctx, id,
		repository.OrderGuard{PaymentStatuses: models.PaymentSourcesFor(refunded)},
		patch,
	)
	if errors.Is(err, repository.ErrGuardMismatch) {
		return nil, invalidTransition(o, "refund")
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("order refunded",
		zap.Stringer("order_id", o.ID),
		zap.Int64("amount", in.Amount),
		zap.Stringer("by", actor.ID),
	)
	e.notify(models.NotifyRefundCompleted, o, fmt.Sprintf("退款已完成，金额 %d 元", in.Amount), withStaff(ownerChannel(o))...)
	return o, nil
}

// ExpireStalePayments fails payments left pending for longer than timeout and
// returns how many it expired. Orders settled concurrently are skipped.
func (e *Engine) ExpireStalePayments(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := e.now().Add(-timeout)
	stale, _, err := e.orders.List(ctx, repository.OrderFilter{
		PaymentStatuses:        []models.PaymentStatus{models.PaymentPending},
		PaymentRequestedBefore: &cutoff,
		Limit:                  expiryBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}

	expired := 0
	for _, o := range stale {
		if o.PaymentOrderNo == nil {
			continue
		}
		_, err := e.MarkFailed(ctx, PaymentResult{PaymentOrderNo: *o.PaymentOrderNo, Reason: "payment timeout"})
		switch {
		case err == nil:
			expired++
		case apperr.KindOf(err) == apperr.KindInternal:
			return expired, err
		}
	}
	return expired, nil
}

func (e *Engine) byPaymentNo(ctx context.Context, no string) (*models.Order, error) {
	if no == "" {
		return nil, apperr.New(apperr.KindNotFound, "payment order not found")
	}
	o, err := e.orders.GetByPaymentOrderNo(ctx, no)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "payment order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load order by payment no: %w", err)
	}
	return o, nil
}
