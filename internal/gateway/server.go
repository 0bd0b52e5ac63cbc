// Package gateway serves the front-end: static pages, the partner API proxy
// routes, logo lookup and operational endpoints.
package gateway

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/fortium-partners/logo-wall/internal/config"
	"github.com/fortium-partners/logo-wall/internal/health"
	"github.com/fortium-partners/logo-wall/internal/metrics"
	"github.com/fortium-partners/logo-wall/internal/requestid"
)

// ServerConfig holds configuration for the gateway HTTP server.
type ServerConfig struct {
	ListenAddr      string
	CORSOrigins     string
	StaticDir       string
	PublicLogoToken string
	Resources       []config.Resource
}

// Server is the gateway Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures a new gateway server.
func NewServer(
	cfg ServerConfig,
	partner PartnerAPI,
	logos LogoAPI,
	checker *health.Checker,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	handlers := NewHandlers(partner, logos, checker, metricsCollector, cfg.PublicLogoToken, logger)

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "gateway_server").Logger(),
		config: cfg,
	}

	s.setupMiddleware(cfg, metricsCollector, logger)
	s.setupRoutes(cfg, handlers, metricsCollector)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, metricsCollector *metrics.Metrics, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(requestid.Middleware())

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, OPTIONS",
		}))
	}

	// Access log and request metrics
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		route := c.Route().Path
		if metricsCollector != nil {
			metricsCollector.RecordRequest(route, strconv.Itoa(status))
			metricsCollector.ObserveDuration(route, time.Since(start).Seconds())
		}

		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return err
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.IP()).
			Str("request_id", requestid.FromFiber(c)).
			Msg("gateway request")

		return err
	})
}

func (s *Server) setupRoutes(cfg ServerConfig, h *Handlers, metricsCollector *metrics.Metrics) {
	// Probe endpoints
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if metricsCollector != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(metricsCollector.Handler()))
	}

	// Front-end API
	api := s.app.Group("/api")
	api.Get("/config", h.Config)
	api.Get("/logo/:domain", h.Logo)

	for _, res := range cfg.Resources {
		s.app.Get(res.Path, h.PartnerResource(res))
	}

	// Pages and assets
	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = "."
	}
	s.app.Get("/", sendPage(filepath.Join(staticDir, "index.html")))
	s.app.Get("/embed", sendPage(filepath.Join(staticDir, "embed.html")))
	s.app.Static("/", staticDir, fiber.Static{
		Browse: false,
		Next: func(c *fiber.Ctx) bool {
			// never serve dotfiles such as .env; the decoded path catches /%2Eenv
			return strings.Contains(string(c.Request().URI().Path()), "/.")
		},
	})
}

func sendPage(path string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendFile(path)
	}
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":3000"
	}

	s.logger.Info().Str("addr", addr).Msg("gateway server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info().Msg("gateway server shutting down")
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
