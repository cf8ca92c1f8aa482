package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppPort     string
	CORSOrigins string
	LogLevel    string
	LogFormat   string
	NodeID      int64

	DBDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	JWTExpiresMin int
	CodeTTL       time.Duration

	PaymentSecret         string
	PaymentPendingTimeout time.Duration
	PaymentSweepSpec      string
	PublicBaseURL         string

	// StrictOwnership requires the actor to own an order before cancelling or
	// rating it; ownerless orders are then reserved to staff.
	StrictOwnership bool
	// AllowAnonymousOrders lets unauthenticated callers create ownerless
	// orders and cancel/rate them (walk-in and demo flows).
	AllowAnonymousOrders bool
	FallbackPrice        int64

	AdminPhone    string
	AdminPassword string
}

var defaults = map[string]any{
	"APP_PORT":                "8080",
	"CORS_ORIGINS":            "http://127.0.0.1:3000, http://localhost:3000",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"NODE_ID":                 1,
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_DB":                0,
	"JWT_EXPIRES_MIN":         43200, // 30 days
	"CODE_TTL":                "5m",
	"PAYMENT_PENDING_TIMEOUT": "30m",
	"PAYMENT_SWEEP_SPEC":      "@every 1m",
	"PUBLIC_BASE_URL":         "http://localhost:8080",
	"ORDER_STRICT_OWNERSHIP":  true,
	"ORDER_ALLOW_ANONYMOUS":   true,
	"FALLBACK_PRICE":          100,
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppPort:               v.GetString("APP_PORT"),
		CORSOrigins:           v.GetString("CORS_ORIGINS"),
		LogLevel:              strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:             strings.ToLower(v.GetString("LOG_FORMAT")),
		NodeID:                v.GetInt64("NODE_ID"),
		DBDSN:                 v.GetString("DB_DSN"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		JWTExpiresMin:         v.GetInt("JWT_EXPIRES_MIN"),
		CodeTTL:               v.GetDuration("CODE_TTL"),
		PaymentSecret:         v.GetString("PAYMENT_SECRET"),
		PaymentPendingTimeout: v.GetDuration("PAYMENT_PENDING_TIMEOUT"),
		PaymentSweepSpec:      v.GetString("PAYMENT_SWEEP_SPEC"),
		PublicBaseURL:         strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		StrictOwnership:       v.GetBool("ORDER_STRICT_OWNERSHIP"),
		AllowAnonymousOrders:  v.GetBool("ORDER_ALLOW_ANONYMOUS"),
		FallbackPrice:         v.GetInt64("FALLBACK_PRICE"),
		AdminPhone:            v.GetString("ADMIN_PHONE"),
		AdminPassword:         v.GetString("ADMIN_PASSWORD"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, errors.New("missing env: DB_DSN"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("missing env: JWT_SECRET"))
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	switch {
	case c.PaymentSecret == "":
		errs = append(errs, errors.New("missing env: PAYMENT_SECRET"))
	case len(c.PaymentSecret) < 16:
		errs = append(errs, errors.New("PAYMENT_SECRET must be at least 16 characters"))
	case c.PaymentSecret == c.JWTSecret:
		errs = append(errs, errors.New("PAYMENT_SECRET must differ from JWT_SECRET"))
	}
	if c.JWTExpiresMin <= 0 {
		errs = append(errs, fmt.Errorf("invalid JWT_EXPIRES_MIN: %d", c.JWTExpiresMin))
	}
	if c.CodeTTL <= 0 {
		errs = append(errs, fmt.Errorf("invalid CODE_TTL: %s", c.CodeTTL))
	}
	if c.FallbackPrice < 0 {
		errs = append(errs, fmt.Errorf("invalid FALLBACK_PRICE: %d", c.FallbackPrice))
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("NODE_ID must be within 0..1023, got %d", c.NodeID))
	}
	if (c.AdminPhone == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_PHONE and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

func (c Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiresMin) * time.Minute
}
