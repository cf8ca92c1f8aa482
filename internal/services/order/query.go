package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ListInput struct {
	Status        string `query:"status"`
	PaymentStatus string `query:"payment_status"`
	Page          int    `query:"page"`
	Size          int    `query:"size"`
}

type Page struct {
	Items []models.Order `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// GetOrder returns the order if the actor may see it. Orders outside the
// actor's visibility are reported as not found.
func (e *Engine) GetOrder(ctx context.Context, actor *models.Actor, id uuid.UUID) (*models.Order, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	o, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, o) {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	return o, nil
}

// ListOrders pages through the orders visible to actor, newest first.
func (e *Engine) ListOrders(ctx context.Context, actor *models.Actor, in ListInput) (*Page, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}

	f := repository.OrderFilter{}
	switch {
	case actor.Role.Can(models.CapViewAllOrders):
	case actor.Role == models.RoleRepairman:
		f.AssignedTo = &actor.ID
	default:
		f.UserID = &actor.ID
	}

	fields := apperr.FieldErrors{}
	if in.Status != "" {
		st, ok := models.ParseOrderStatus(in.Status)
		if !ok {
			fields.Add("status", "unknown order status")
		}
		f.Statuses = []models.OrderStatus{st}
	}
	if in.PaymentStatus != "" {
		ps := models.PaymentStatus(in.PaymentStatus)
		switch ps {
		case models.PaymentUnpaid, models.PaymentPending, models.PaymentPaid, models.PaymentFailed, models.PaymentRefunded:
			f.PaymentStatuses = []models.PaymentStatus{ps}
		default:
			fields.Add("payment_status", "unknown payment status")
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	if in.Page < 1 {
		in.Page = 1
	}
	if in.Size < 1 {
		in.Size = defaultPageSize
	}
	if in.Size > maxPageSize {
		in.Size = maxPageSize
	}
	f.Limit = in.Size
	f.Offset = (in.Page - 1) * in.Size

	items, total, err := e.orders.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Order{}
	}
	return &Page{Items: items, Total: total, Page: in.Page, Size: in.Size}, nil
}

func (e *Engine) Stats(ctx context.Context, actor *models.Actor) (*repository.OrderStats, error) {
	if err := requireCap(actor, models.CapViewStats); err != nil {
		return nil, err
	}
	return e.orders.Stats(ctx)
}

// GetByPaymentNo returns the order behind a payment number for its owner or staff.
func (e *Engine) GetByPaymentNo(ctx context.Context, actor *models.Actor, no string) (*models.Order, error) {
	if err := requireCap(actor, models.CapSimulatePaying); err != nil {
		return nil, err
	}
	o, err := e.byPaymentNo(ctx, no)
	if err != nil {
		return nil, err
	}
	if !canView(actor, o) {
		return nil, apperr.New(apperr.KindNotFound, "payment order not found")
	}
	return o, nil
}
