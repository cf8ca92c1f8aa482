package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/middleware"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/auth"
)

// UserHandler serves staff-facing user management.
type UserHandler struct {
	Auth *auth.Service
}

func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req auth.AdminCreateUserInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.Auth.AdminRegister(c.UserContext(), middleware.ActorFrom(c), req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "User created", u)
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	users, err := h.Auth.ListUsers(c.UserContext(), middleware.ActorFrom(c), c.Query("role"))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", users)
}

func (h *UserHandler) Update(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "user")
	if err != nil {
		return err
	}
	var req auth.AdminUpdateUserInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.Auth.AdminUpdateUser(c.UserContext(), middleware.ActorFrom(c), id, req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "User updated", u)
}

func (h *UserHandler) Repairmen(c *fiber.Ctx) error {
	users, err := h.Auth.ListRepairmen(c.UserContext(), middleware.ActorFrom(c))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", users)
}
