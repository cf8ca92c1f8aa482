package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/metrics"
)

// Observe logs every request and records request metrics.
func Observe(log *zap.Logger, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		took := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}
		route := c.Route().Path
		m.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(c.Method(), route).Observe(took.Seconds())

		level := zapcore.InfoLevel
		if status >= fiber.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}
		if ce := log.Check(level, "http request"); ce != nil {
			fields := []zap.Field{
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Duration("latency", took),
				zap.String("ip", c.IP()),
			}
			if err != nil && status >= fiber.StatusInternalServerError {
				fields = append(fields, zap.Error(err))
			}
			ce.Write(fields...)
		}
		return err
	}
}

func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperr.HTTPStatus(apperr.KindOf(err))
}
