package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/cache"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/config"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/db"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/handlers"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/jobs"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/logger"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/metrics"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/middleware"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/realtime"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/auth"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/order"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/payment"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync() //nolint:errcheck

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDSN, zl)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	zl.Info("redis connected", zap.String("addr", cfg.RedisAddr))

	m := metrics.New(prometheus.DefaultRegisterer)
	hub := realtime.NewHub(m, zl.Named("hub"), realtime.WithRelay(realtime.NewRedisRelay(rdb)))

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(gdb)
	orders := repository.NewOrderRepository(gdb)
	prices := pricing.NewTable(cfg.FallbackPrice)

	authSvc := auth.NewService(users, cache.NewCodeStore(rdb), auth.LogCodeSender{Log: zl.Named("sms")}, auth.Options{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.JWTExpiry(),
		CodeTTL:   cfg.CodeTTL,
	}, zl.Named("auth"))

	if cfg.AdminPhone != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.AdminPhone, cfg.AdminPassword); err != nil {
			return err
		}
	}

	engine := order.NewEngine(order.Deps{
		Orders:     orders,
		Users:      users,
		Prices:     prices,
		Notifier:   hub,
		PaymentIDs: node,
		Metrics:    m,
		Log:        zl.Named("order"),
	}, order.Policy{
		StrictOwnership: cfg.StrictOwnership,
		AllowAnonymous:  cfg.AllowAnonymousOrders,
	})

	gateway := payment.NewGateway(cfg.PaymentSecret, cfg.PublicBaseURL+"/api/payments")

	scheduler := jobs.NewScheduler(zl.Named("jobs"))
	if err := scheduler.Add(cfg.PaymentSweepSpec, &jobs.PaymentExpiryJob{
		Orders:  engine,
		Timeout: cfg.PaymentPendingTimeout,
		Metrics: m,
		Log:     zl.Named("jobs"),
	}); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(zl),
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))
	app.Use(middleware.Observe(zl.Named("http"), m))

	registerRoutes(app, routeDeps{
		auth: &handlers.AuthHandler{
			Auth:         authSvc,
			Expires:      cfg.JWTExpiry(),
			SecureCookie: strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		},
		users:    &handlers.UserHandler{Auth: authSvc},
		orders:   handlers.NewOrderHandler(engine, gateway, prices),
		payments: handlers.NewPaymentHandler(engine, gateway, zl.Named("payment")),
		notify:   handlers.NewNotificationHandler(hub),
		authn:    authSvc,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		scheduler.Stop(stopCtx)
		return nil
	})
	g.Go(func() error {
		zl.Info("listening", zap.String("port", cfg.AppPort))
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			return err
		}
		return errors.New("http server closed")
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		// Signalled shutdown: the listener returning is expected.
		zl.Info("shutdown complete")
		return nil
	}
	return err
}
