package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/middleware"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/order"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/payment"
)

type PaymentHandler struct {
	Engine  *order.Engine
	Gateway *payment.Gateway
	Log     *zap.Logger
}

func NewPaymentHandler(engine *order.Engine, gateway *payment.Gateway, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{Engine: engine, Gateway: gateway, Log: log}
}

// HandleCallback receives the gateway's settlement notice.
func (h *PaymentHandler) HandleCallback(c *fiber.Ctx) error {
	signature := c.Get(payment.SignatureHeader)
	if signature == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing signature")
	}
	body := append([]byte(nil), c.Body()...)
	if !h.Gateway.ValidateSignature(signature, body) {
		h.Log.Warn("payment callback with invalid signature", zap.String("ip", c.IP()))
		return fiber.NewError(fiber.StatusBadRequest, "invalid signature")
	}

	o, err := h.settle(c.UserContext(), body)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", toOrderResponse(o))
}

// Simulate plays the gateway: it signs a callback for the payment and feeds
// it through the same settlement path. ?result=success|fail
func (h *PaymentHandler) Simulate(c *fiber.Ctx) error {
	o, err := h.Engine.GetByPaymentNo(c.UserContext(), middleware.ActorFrom(c), c.Params("paymentNo"))
	if err != nil {
		return err
	}

	var paid bool
	switch c.Query("result", "success") {
	case "success":
		paid = true
	case "fail":
	default:
		fields := apperr.FieldErrors{}
		fields.Add("result", "result must be one of: success fail")
		return apperr.Validation(fields)
	}

	body, _, err := h.Gateway.BuildCallback(*o.PaymentOrderNo, o.Amount, paid, "simulated")
	if err != nil {
		return err
	}
	o, err = h.settle(c.UserContext(), body)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Payment simulated", toOrderResponse(o))
}

func (h *PaymentHandler) settle(ctx context.Context, body []byte) (*models.Order, error) {
	cb, err := payment.ParseCallback(body)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	res := order.PaymentResult{
		PaymentOrderNo: cb.MerchantRef,
		TransactionID:  cb.Reference,
		Raw:            body,
	}
	if cb.Paid() {
		return h.Engine.MarkPaid(ctx, res)
	}
	res.Reason = "gateway reported " + cb.Status
	if cb.Note != "" {
		res.Reason += ": " + cb.Note
	}
	return h.Engine.MarkFailed(ctx, res)
}
