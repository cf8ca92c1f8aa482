package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/handlers"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/middleware"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

type routeDeps struct {
	auth     *handlers.AuthHandler
	users    *handlers.UserHandler
	orders   *handlers.OrderHandler
	payments *handlers.PaymentHandler
	notify   *handlers.NotificationHandler
	authn    middleware.Authenticator
}

func registerRoutes(app *fiber.App, d routeDeps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// websocket: token travels in ?token=
	app.Get("/ws", middleware.Authenticate(d.authn), d.notify.Upgrade, d.notify.Stream())

	api := app.Group("/api")

	// public
	api.Post("/auth/register", d.auth.Register)
	api.Post("/auth/login", d.auth.Login)
	api.Post("/auth/code", d.auth.SendCode)
	api.Post("/auth/login/code", d.auth.LoginWithCode)
	api.Post("/auth/logout", d.auth.Logout)
	api.Get("/prices", d.orders.ListPrices)
	api.Post("/payments/callback", d.payments.HandleCallback)

	// anonymous allowed; the engine decides per policy
	optional := middleware.OptionalAuth(d.authn)
	api.Post("/orders", optional, d.orders.Create)
	api.Post("/orders/:id/cancel", optional, d.orders.Cancel)
	api.Post("/orders/:id/rate", optional, d.orders.Rate)

	protected := api.Group("/", middleware.Authenticate(d.authn))

	protected.Get("/me", d.auth.Me)
	protected.Put("/me", d.auth.UpdateMe)
	protected.Put("/me/password", d.auth.ChangePassword)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCustomerService)

	// stats before :id
	protected.Get("/orders/stats", staff, d.orders.Stats)
	protected.Get("/orders", d.orders.List)
	protected.Get("/orders/:id", d.orders.Get)
	protected.Post("/orders/:id/pay", d.orders.Pay)
	protected.Post("/payments/:paymentNo/simulate", d.payments.Simulate)

	protected.Post("/orders/:id/confirm", staff, d.orders.Confirm)
	protected.Post("/orders/:id/assign", staff, d.orders.Assign)
	protected.Post("/orders/:id/refund", staff, d.orders.Refund)
	protected.Get("/repairmen", staff, d.users.Repairmen)

	protected.Patch("/orders/:id/status", middleware.RequireRoles(models.RoleRepairman), d.orders.UpdateStatus)

	admin := protected.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.Post("/users", d.users.Create)
	admin.Get("/users", d.users.List)
	admin.Put("/users/:id", d.users.Update)
}
