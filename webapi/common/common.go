// Package common holds the HTTP plumbing shared by both services: the Fiber
// app, RFC 9457 problem responses, request binding and the health and metrics
// endpoints.
package common

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

var validate = validator.New()

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`         // HTTP status code
	Message string `json:"message"`        // Human-readable explanation
	Data    any    `json:"data,omitempty"` // Response data
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Errors   any    `json:"errors,omitempty"`
}

// Config is what NewApp needs besides the routes.
type Config struct {
	Service     string
	Logger      *slog.Logger
	MetricsPath string
	Metrics     http.Handler
}

// NewApp creates a Fiber app with panic recovery, request ids, /health and,
// when a handler is given, the metrics endpoint.
func NewApp(cfg Config) *fiber.App {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "http")

	app := fiber.New(fiber.Config{
		AppName: cfg.Service,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				status = e.Code
			}
			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
			}
			return ErrorResponseJSON(c, status, http.StatusText(status), err.Error())
		},
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.Service})
	})
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(cfg.Metrics))
	}
	return app
}

// SuccessResponseJSON writes a Response envelope.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Status: status, Message: message, Data: data})
}

// ErrorResponseJSON returns a response following RFC 9457 Problem Details
func ErrorResponseJSON(c *fiber.Ctx, status int, title string, detail any) error {
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Instance: c.OriginalURL(),
	}
	if detail != nil {
		if s, ok := detail.(string); ok {
			pd.Detail = s
		} else {
			pd.Errors = detail
		}
	}
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(status).JSON(pd)
}

// ProblemDetailsJSON writes err as a problem response whose status follows
// the error's kind.
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error) error {
	status := ErrorToStatusCode(err)
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   err.Error(),
		Instance: c.OriginalURL(),
		Kind:     string(domain.KindOf(err)),
	}
	if domain.IsRetryable(err) {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(status).JSON(pd)
}

// ErrorToStatusCode maps domain errors to HTTP status codes.
func ErrorToStatusCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindAlreadyExists, domain.KindConflict, domain.KindRemovalFailed:
		return fiber.StatusConflict
	case domain.KindValidationFailure:
		return fiber.StatusUnprocessableEntity
	case domain.KindTransportFailure:
		return fiber.StatusServiceUnavailable
	case domain.KindTimeout:
		return fiber.StatusGatewayTimeout
	case domain.KindMalformedReply:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// BindAndValidate parses the request body and validates it using go-playground/validator.
// On failure the error response is already written and the returned pointer is nil.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid request body", err.Error())
	}
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return nil, ErrorResponseJSON(c, fiber.StatusBadRequest, "Validation failed", fields)
		}
		return nil, ErrorResponseJSON(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}
	return &input, nil
}

// Page reads zero-based page and size query parameters.
func Page(c *fiber.Ctx) (page, size int) {
	return c.QueryInt("page", 0), c.QueryInt("size", 0)
}

// Serve listens on addr until ctx ends, then shuts the app down gracefully.
func Serve(ctx context.Context, app *fiber.App, addr string, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down http server", "address", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
