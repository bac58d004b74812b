// Package ops serves the operational HTTP surface: probes and a status
// snapshot of the gateway session. Prometheus metrics are served from a
// separate plain net/http listener (see cmd/scc).
package ops

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/Onepiecedad/skyland-command-center/internal/gateway"
	"github.com/Onepiecedad/skyland-command-center/internal/health"
)

// ServerConfig holds configuration for the ops server.
type ServerConfig struct {
	ListenAddr  string
	CORSOrigins string
}

// Server is the operational API Fiber application.
type Server struct {
	app     *fiber.App
	client  *gateway.Client
	checker *health.Checker
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures the ops server.
func NewServer(cfg ServerConfig, client *gateway.Client, checker *health.Checker, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:     app,
		client:  client,
		checker: checker,
		logger:  logger.With().Str("component", "ops_server").Logger(),
		config:  cfg,
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	if cfg.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept",
			AllowMethods: "GET, OPTIONS",
		}))
	}

	app.Get("/healthz", s.liveness)
	app.Get("/readyz", s.readiness)
	app.Get("/status", s.status)

	return s
}

func (s *Server) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) readiness(c *fiber.Ctx) error {
	report := s.checker.Run(c.Context())
	if !report.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"checks": report.Checks,
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": report.Checks,
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	last := s.checker.Last()
	return c.JSON(fiber.Map{
		"gateway":   s.client.Status(),
		"checks":    last.Checks,
		"checkedAt": last.RanAt,
	})
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}
	s.logger.Info().Str("addr", addr).Msg("ops server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("ops server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Msg("unhandled error")

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
