package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/middleware"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/order"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/payment"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/pricing"
)

type OrderHandler struct {
	Engine  *order.Engine
	Gateway *payment.Gateway
	Prices  *pricing.Table
}

func NewOrderHandler(engine *order.Engine, gateway *payment.Gateway, prices *pricing.Table) *OrderHandler {
	return &OrderHandler{Engine: engine, Gateway: gateway, Prices: prices}
}

// ListPrices returns the appointment price table and the fallback price.
func (h *OrderHandler) ListPrices(c *fiber.Ctx) error {
	return success(c, fiber.StatusOK, "", fiber.Map{
		"items":    h.Prices.Entries(),
		"fallback": h.Prices.Fallback(),
	})
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var req order.CreateInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	o, err := h.Engine.CreateOrder(c.UserContext(), middleware.ActorFrom(c), req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Order created", toOrderResponse(o))
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	var q order.ListInput
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query")
	}
	page, err := h.Engine.ListOrders(c.UserContext(), middleware.ActorFrom(c), q)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", fiber.Map{
		"items": toOrderResponses(page.Items),
		"total": page.Total,
		"page":  page.Page,
		"size":  page.Size,
	})
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "order")
	if err != nil {
		return err
	}
	o, err := h.Engine.GetOrder(c.UserContext(), middleware.ActorFrom(c), id)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", toOrderResponse(o))
}

func (h *OrderHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.Engine.Stats(c.UserContext(), middleware.ActorFrom(c))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", stats)
}

func (h *OrderHandler) Confirm(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "order")
	if err != nil {
		return err
	}
	o, err := h.Engine.ConfirmOrder(c.UserContext(), middleware.ActorFrom(c), id)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Order confirmed", toOrderResponse(o))
}

type assignRequest struct {
	RepairmanID string `json:"repairman_id"`
}

func (h *OrderHandler) Assign(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "order")
	if err != nil {
		return err
	}
	var req assignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	// An unparseable id cannot name a repairman.
	repairmanID, _ := uuid.Parse(req.RepairmanID)
	o, err := h.Engine.AssignOrder(c.UserContext(), middleware.ActorFrom(c), id, repairmanID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Order assigned", toOrderResponse(o))
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "order")
	if err != nil {
		return err
	}
	var req order.StatusInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	o, err := h.Engine.UpdateOrderStatus(c.UserContext(), middleware.ActorFrom(c), id, req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Order status updated", toOrderResponse(o))
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "order")
	if err != nil {
		return err
	}
	o, err := h.Engine.CancelOrder(c.UserContext(), middleware.ActorFrom(c), id)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Order cancelled", toOrderResponse(o))
}

func (h *OrderHandler) Rate(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "order")
	if err != nil {
		return err
	}
	var req order.RateInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	o, err := h.Engine.RateOrder(c.UserContext(), middleware.ActorFrom(c), id, req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Thanks for your rating", toOrderResponse(o))
}

func (h *OrderHandler) Pay(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "order")
	if err != nil {
		return err
	}
	var req order.PayInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	o, err := h.Engine.InitiatePayment(c.UserContext(), middleware.ActorFrom(c), id, req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Payment created", fiber.Map{
		"order":            toOrderResponse(o),
		"payment_order_no": *o.PaymentOrderNo,
		"checkout_url":     h.Gateway.CheckoutURL(*o.PaymentOrderNo, o.Amount),
	})
}

func (h *OrderHandler) Refund(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "order")
	if err != nil {
		return err
	}
	var req order.RefundInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	o, err := h.Engine.Refund(c.UserContext(), middleware.ActorFrom(c), id, req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Refund completed", toOrderResponse(o))
}
