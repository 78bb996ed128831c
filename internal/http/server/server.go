// Package server assembles the fiber application.
package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"resume-printer/internal/config"
	"resume-printer/internal/http/handlers"
	"resume-printer/internal/http/middleware"
	"resume-printer/internal/infra/logging"
)

const (
	ScopePrinter = "printer"
	ScopeOps     = "ops"
)

// TokenStore is what auth and the token limiter need from the token cache.
type TokenStore interface {
	middleware.TokenValidator
	middleware.ScopeChecker
	middleware.TokenRater
}

// Deps are the collaborators wired in by main. Tokens is nil when auth is disabled.
type Deps struct {
	Config    config.Config
	Printer   handlers.Printer
	Stats     handlers.StatsProvider
	Tokens    TokenStore
	RateStore fiber.Storage
}

// New builds the app with middleware, routes and a JSON 404.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app)
	registerRoutes(app, d)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		msg = e.Message
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}

func registerRoutes(app *fiber.App, d Deps) {
	cfg := d.Config
	h := handlers.NewPrinterHandler(d.Printer, d.Stats, requestTimeout(cfg))

	var printerScope, opsScope fiber.Handler = passThrough, passThrough

	v1 := app.Group("/v1")
	if d.Tokens != nil {
		v1.Use(middleware.APIKey(d.Tokens))
		printerScope = middleware.RequireScope(d.Tokens, ScopePrinter, !cfg.Auth.RequireKey)
		opsScope = middleware.RequireScope(d.Tokens, ScopeOps, false)
	}

	store := d.RateStore
	limits := middleware.RateLimitConfig{
		RateInterval:           cfg.RateLimiter.Interval,
		EnableTokenRateLimiter: cfg.RateLimiter.EnableTokenRateLimiter && d.Tokens != nil,
		EnableUserLimiter:      cfg.RateLimiter.EnableUserLimiter,
		UserLimit:              cfg.RateLimiter.UserLimit,
	}
	if store != nil {
		if d.Tokens != nil {
			v1.Use(middleware.TokenRateLimit(limits, d.Tokens, store, middleware.NewLimiterCache()))
		}
		v1.Use(middleware.UserRateLimit(limits, store))
	}

	printer := v1.Group("/printer")
	printer.Post("/resume", printerScope, h.HandleResume)
	printer.Post("/preview", printerScope, h.HandlePreview)
	printer.Get("/version", printerScope, h.HandleVersion)
	printer.Get("/stats", opsScope, h.HandleStats)

	v1.Get("/monitor", opsScope, monitor.New())
}

// requestTimeout leaves room for every retry of a render plus the backoff between them.
func requestTimeout(cfg config.Config) time.Duration {
	r := cfg.Printer.Retry
	per := cfg.Chrome.DefaultTimeout + cfg.Printer.NavigationTimeout
	if per <= 0 || r.Attempts <= 0 {
		return 0
	}
	return time.Duration(r.Attempts)*per + time.Duration(r.Attempts-1)*r.MaxInterval
}

func passThrough(c *fiber.Ctx) error { return c.Next() }
