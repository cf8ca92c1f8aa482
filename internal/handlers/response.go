package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

// ErrorHandler renders every error returned by a handler or middleware as
// {success:false, code, message, errors, data:null}. Unexpected errors are
// logged and reported without detail.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"success": false,
				"code":    codeForStatus(fe.Code),
				"message": fe.Message,
				"data":    nil,
			})
		}

		var ae *apperr.Error
		if !errors.As(err, &ae) {
			log.Error("unhandled error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"code":    apperr.KindInternal,
				"message": "internal server error",
				"data":    nil,
			})
		}

		body := fiber.Map{
			"success": false,
			"code":    ae.Kind,
			"message": ae.Message,
			"data":    nil,
		}
		if len(ae.Fields) > 0 {
			body["errors"] = ae.Fields
		}
		return c.Status(apperr.HTTPStatus(ae.Kind)).JSON(body)
	}
}

func codeForStatus(status int) apperr.Kind {
	switch status {
	case fiber.StatusUnauthorized:
		return apperr.KindUnauthenticated
	case fiber.StatusForbidden:
		return apperr.KindForbidden
	case fiber.StatusNotFound:
		return apperr.KindNotFound
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return apperr.KindValidation
	}
	return apperr.KindInternal
}

func success(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	return nil
}

// paramUUID reads a uuid path parameter. A malformed id cannot exist, so
// it is reported as not found.
func paramUUID(c *fiber.Ctx, name, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindNotFound, "%s not found", entity)
	}
	return id, nil
}

// OrderResponse adds the display label next to the canonical status.
type OrderResponse struct {
	*models.Order
	StatusLabel string `json:"status_label"`
}

func toOrderResponse(o *models.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	return &OrderResponse{Order: o, StatusLabel: o.Status.Label()}
}

func toOrderResponses(orders []models.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	return out
}
