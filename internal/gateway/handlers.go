package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/fortium-partners/logo-wall/internal/config"
	gwerrors "github.com/fortium-partners/logo-wall/internal/errors"
	"github.com/fortium-partners/logo-wall/internal/health"
	"github.com/fortium-partners/logo-wall/internal/metrics"
	"github.com/fortium-partners/logo-wall/internal/requestid"
)

// PartnerAPI fetches opaque partner resources. Satisfied by *partner.Client.
type PartnerAPI interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// LogoAPI resolves a domain to a logo URL. Satisfied by *logodev.Client.
type LogoAPI interface {
	Search(ctx context.Context, domain string) (string, error)
}

// ConfigResponse is served by GET /api/config.
type ConfigResponse struct {
	LogodevToken string `json:"logodevToken"`
}

// LogoResponse is served by GET /api/logo/:domain.
type LogoResponse struct {
	LogoURL string `json:"logoUrl"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	partner         PartnerAPI
	logos           LogoAPI
	checker         *health.Checker
	metrics         *metrics.Metrics
	publicLogoToken string
	logger          zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(partner PartnerAPI, logos LogoAPI, checker *health.Checker, m *metrics.Metrics, publicLogoToken string, logger zerolog.Logger) *Handlers {
	if publicLogoToken == "" {
		publicLogoToken = config.DemoLogoToken
	}
	return &Handlers{
		partner:         partner,
		logos:           logos,
		checker:         checker,
		metrics:         m,
		publicLogoToken: publicLogoToken,
		logger:          logger.With().Str("component", "handlers").Logger(),
	}
}

// PartnerResource returns the handler relaying one partner resource.
// The upstream body is passed through untouched; any failure becomes a 500
// with the resource's fixed message.
func (h *Handlers) PartnerResource(res config.Resource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, err := h.partner.Get(c.UserContext(), res.Upstream)
		if err != nil {
			h.upstreamFailed(c, "partner", err).
				Str("resource", res.Name).
				Msg("partner request failed")
			return errorResponse(c, fiber.StatusInternalServerError, res.ErrorMessage())
		}

		h.recordUpstream("partner", "ok")
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).Send(body)
	}
}

// Logo handles GET /api/logo/:domain. The domain is decoded after routing so
// an escaped slash stays inside the parameter.
func (h *Handlers) Logo(c *fiber.Ctx) error {
	domain, err := url.PathUnescape(c.Params("domain"))
	if err != nil {
		h.logger.Debug().Err(err).Str("domain", c.Params("domain")).Msg("undecodable logo domain")
		return errorResponse(c, fiber.StatusNotFound, MsgLogoNotFound)
	}

	logoURL, err := h.logos.Search(c.UserContext(), domain)
	switch {
	case err == nil:
		h.recordUpstream("logo", "ok")
		return c.JSON(LogoResponse{LogoURL: logoURL})
	case errors.Is(err, gwerrors.ErrNotFound):
		h.recordUpstream("logo", gwerrors.Kind(err))
		h.logger.Debug().Err(err).Str("domain", domain).Msg("logo not found")
		return errorResponse(c, fiber.StatusNotFound, MsgLogoNotFound)
	default:
		h.upstreamFailed(c, "logo", err).
			Str("domain", domain).
			Msg("logo lookup failed")
		return errorResponse(c, fiber.StatusInternalServerError, MsgLogoFailed)
	}
}

// Config handles GET /api/config.
func (h *Handlers) Config(c *fiber.Ctx) error {
	return c.JSON(ConfigResponse{LogodevToken: h.publicLogoToken})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker == nil {
		return c.JSON(fiber.Map{"status": "ready"})
	}

	ready, results := h.checker.Report(c.UserContext())
	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"checks": results,
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": results,
	})
}

// upstreamFailed records the failure and returns a log event carrying the
// detail that is withheld from the client.
func (h *Handlers) upstreamFailed(c *fiber.Ctx, upstream string, err error) *zerolog.Event {
	kind := gwerrors.Kind(err)
	h.recordUpstream(upstream, kind)
	if h.metrics != nil {
		h.metrics.RecordError(upstream, kind)
	}
	evt := h.logger.Error().
		Err(err).
		Str("kind", kind).
		Str("request_id", requestid.FromFiber(c))
	if code := gwerrors.StatusCode(err); code != 0 {
		evt = evt.Int("upstream_status", code)
	}
	return evt
}

func (h *Handlers) recordUpstream(upstream, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordUpstream(upstream, outcome)
	}
}
