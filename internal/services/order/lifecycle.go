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

type CreateInput struct {
	DeviceType         string     `json:"device_type" validate:"required,max=50"`
	DeviceModel        string     `json:"device_model" validate:"max=100"`
	ServiceType        string     `json:"service_type" validate:"required"`
	AppointmentService string     `json:"appointment_service" validate:"max=50"`
	Problem            string     `json:"problem" validate:"max=2000"`
	Urgency            string     `json:"urgency"`
	ContactName        string     `json:"contact_name" validate:"max=100"`
	ContactPhone       string     `json:"contact_phone" validate:"omitempty,cnphone"`
	AppointmentTime    *time.Time `json:"appointment_time"`
}

// assignable statuses; an order paid while pending is already in_progress
// but still needs a repairman.
var assignableStatuses = []models.OrderStatus{models.StatusPending, models.StatusConfirmed, models.StatusInProgress}

// repairmanTargets are the statuses a repairman may set.
var repairmanTargets = map[models.OrderStatus]bool{
	models.StatusPending:    true,
	models.StatusInProgress: true,
	models.StatusCompleted:  true,
}

// CreateOrder prices and stores a new pending, unpaid order. A nil actor
// creates an ownerless order when anonymous orders are allowed. Staff create
// walk-in orders, which are ownerless too.
func (e *Engine) CreateOrder(ctx context.Context, actor *models.Actor, in CreateInput) (o *models.Order, err error) {
	defer func() { e.observe("create", err) }()

	if actor == nil && !e.policy.AllowAnonymous {
		return nil, apperr.ErrUnauthenticated
	}
	if actor != nil {
		if err := requireCap(actor, models.CapCreateOrder); err != nil {
			return nil, err
		}
	}

	in.DeviceType = strings.TrimSpace(in.DeviceType)
	in.AppointmentService = strings.TrimSpace(in.AppointmentService)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	extra := apperr.FieldErrors{}
	serviceType, ok := models.ParseServiceType(in.ServiceType)
	if !ok && in.ServiceType != "" {
		extra.Add("service_type", "service_type must be one of: repair appointment")
	}
	urgency, ok := models.ParseUrgency(in.Urgency)
	if !ok {
		extra.Add("urgency", "urgency must be one of: low medium high")
	}
	if err := validation.Merge(validation.Struct(in), extra); err != nil {
		return nil, err
	}

	o = &models.Order{
		DeviceType:         in.DeviceType,
		DeviceModel:        strings.TrimSpace(in.DeviceModel),
		ServiceType:        serviceType,
		AppointmentService: in.AppointmentService,
		Problem:            strings.TrimSpace(in.Problem),
		Urgency:            urgency,
		ContactName:        strings.TrimSpace(in.ContactName),
		ContactPhone:       in.ContactPhone,
		AppointmentTime:    in.AppointmentTime,
		Status:             models.StatusPending,
		PaymentStatus:      models.PaymentUnpaid,
		Amount:             e.prices.Price(serviceType, in.AppointmentService),
	}
	if actor != nil && !actor.Role.IsStaff() {
		owner := actor.ID
		o.UserID = &owner
	}
	if err := e.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	e.log.Info("order created",
		zap.Stringer("order_id", o.ID),
		zap.String("service_type", string(o.ServiceType)),
		zap.Int64("amount", o.Amount),
	)
	e.notify(models.NotifyNewOrder, o, fmt.Sprintf("新订单：%s %s", o.DeviceType, o.DeviceModel), models.StaffChannels()...)
	return o, nil
}

// ConfirmOrder moves a pending order to confirmed.
func (e *Engine) ConfirmOrder(ctx context.Context, actor *models.Actor, id uuid.UUID) (o *models.Order, err error) {
	defer func() { e.observe("confirm", err) }()

	if err := requireCap(actor, models.CapConfirmOrder); err != nil {
		return nil, err
	}
	next := models.StatusConfirmed
	o, err = e.update(ctx, id,
		repository.OrderGuard{Statuses: []models.OrderStatus{models.StatusPending}},
		repository.OrderPatch{Status: &next},
	)
	if errors.Is(err, repository.ErrGuardMismatch) {
		return nil, invalidTransition(o, "confirm")
	}
	if err != nil {
		return nil, err
	}
	e.notify(models.NotifyOrderStatusChange, o, "订单已确认", statusAudience(o)...)
	return o, nil
}

// AssignOrder gives an unassigned order to a repairman and moves it to
// in_progress. Only one of several concurrent assignments can win.
func (e *Engine) AssignOrder(ctx context.Context, actor *models.Actor, id, repairmanID uuid.UUID) (o *models.Order, err error) {
	defer func() { e.observe("assign", err) }()

	if err := requireCap(actor, models.CapAssignOrder); err != nil {
		return nil, err
	}
	repairman, err := e.users.GetByID(ctx, repairmanID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load repairman: %w", err)
	}
	if err != nil || repairman.Role != models.RoleRepairman || !repairman.IsActive {
		return nil, apperr.New(apperr.KindNotFound, "repairman not found")
	}

	next := models.StatusInProgress
	o, err = e.update(ctx, id,
		repository.OrderGuard{Statuses: assignableStatuses, Unassigned: true},
		repository.OrderPatch{AssignedTo: &repairmanID, Status: &next},
	)
	if errors.Is(err, repository.ErrGuardMismatch) {
		if o.AssignedTo != nil && !o.Status.Terminal() {
			return nil, apperr.New(apperr.KindConflict, "order is already assigned")
		}
		return nil, invalidTransition(o, "assign")
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("order assigned",
		zap.Stringer("order_id", o.ID),
		zap.Stringer("repairman_id", repairmanID),
		zap.Stringer("by", actor.ID),
	)
	e.notify(models.NotifyOrderAssignment, o, "您有新的维修任务", models.UserChannel(repairmanID))
	e.notify(models.NotifyOrderStatusChange, o, "订单状态更新为："+o.Status.Label(), withStaff(ownerChannel(o))...)
	return o, nil
}

type StatusInput struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateOrderStatus is the assigned repairman's progress report. Setting the
// current status again changes nothing and sends nothing.
func (e *Engine) UpdateOrderStatus(ctx context.Context, actor *models.Actor, id uuid.UUID, in StatusInput) (o *models.Order, err error) {
	defer func() { e.observe("update_status", err) }()

	if err := requireCap(actor, models.CapUpdateStatus); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	next, ok := models.ParseOrderStatus(in.Status)
	if !ok || !repairmanTargets[next] {
		return nil, apperr.New(apperr.KindInvalidTransition, "status %q cannot be set by a repairman", in.Status)
	}

	o, err = e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.AssignedToUser(actor.ID) {
		return nil, apperr.New(apperr.KindForbidden, "order is not assigned to you")
	}
	if o.Status.Terminal() {
		return nil, invalidTransition(o, "update")
	}

	guard := repository.OrderGuard{AssignedTo: &actor.ID, Statuses: []models.OrderStatus{o.Status}}
	if next == o.Status {
		if in.Notes == nil || *in.Notes == o.RepairNotes {
			return o, nil
		}
		o, err = e.update(ctx, id, guard, repository.OrderPatch{RepairNotes: in.Notes})
		if errors.Is(err, repository.ErrGuardMismatch) {
			return nil, apperr.New(apperr.KindConflict, "order changed concurrently, reload and retry")
		}
		return o, err
	}

	patch := repository.OrderPatch{Status: &next, RepairNotes: in.Notes}
	if next == models.StatusCompleted {
		now := e.now()
		patch.CompletedAt = &now
	}
	prev := o.Status
	o, err = e.update(ctx, id, guard, patch)
	if errors.Is(err, repository.ErrGuardMismatch) {
		switch {
		case o.Status.Terminal():
			return nil, invalidTransition(o, "update")
		case !o.AssignedToUser(actor.ID):
			return nil, apperr.New(apperr.KindForbidden, "order is not assigned to you")
		}
		return nil, apperr.New(apperr.KindConflict, "order changed concurrently, reload and retry")
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("order status updated",
		zap.Stringer("order_id", o.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(o.Status)),
	)
	e.notify(models.NotifyOrderStatusChange, o, "订单状态更新为："+o.Status.Label(), withStaff(ownerChannel(o))...)
	return o, nil
}

// CancelOrder is legal only from pending, and not while a payment is in
// flight: a gateway success landing after the cancel would charge a dead order.
func (e *Engine) CancelOrder(ctx context.Context, actor *models.Actor, id uuid.UUID) (o *models.Order, err error) {
	defer func() { e.observe("cancel", err) }()

	o, err = e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkOwnerAction(actor, o, models.CapCancelOrder, true); err != nil {
		return nil, err
	}

	next := models.StatusCancelled
	now := e.now()
	o, err = e.update(ctx, id,
		repository.OrderGuard{
			Statuses:        []models.OrderStatus{models.StatusPending},
			PaymentStatuses: []models.PaymentStatus{models.PaymentUnpaid, models.PaymentFailed},
		},
		repository.OrderPatch{Status: &next, CancelledAt: &now},
	)
	if errors.Is(err, repository.ErrGuardMismatch) {
		return nil, invalidTransition(o, "cancel")
	}
	if err != nil {
		return nil, err
	}
	e.notify(models.NotifyOrderStatusChange, o, "订单已取消", statusAudience(o)...)
	return o, nil
}

type RateInput struct {
	Score   int    `json:"score" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=500"`
}

// RateOrder records the single rating of a completed order.
func (e *Engine) RateOrder(ctx context.Context, actor *models.Actor, id uuid.UUID, in RateInput) (o *models.Order, err error) {
	defer func() { e.observe("rate", err) }()

	in.Comment = strings.TrimSpace(in.Comment)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	o, err = e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkOwnerAction(actor, o, models.CapRateOrder, false); err != nil {
		return nil, err
	}

	now := e.now()
	o, err = e.update(ctx, id,
		repository.OrderGuard{Statuses: []models.OrderStatus{models.StatusCompleted}, Unrated: true},
		repository.OrderPatch{RatingScore: &in.Score, RatingComment: &in.Comment, RatedAt: &now},
	)
	if errors.Is(err, repository.ErrGuardMismatch) {
		if o.Status == models.StatusCompleted && o.Rated() {
			return nil, apperr.ErrAlreadyRated
		}
		return nil, invalidTransition(o, "rate")
	}
	if err != nil {
		return nil, err
	}
	e.notify(models.NotifySystemMessage, o, fmt.Sprintf("客户评价：%d 星", in.Score), repairmanChannel(o))
	return o, nil
}
