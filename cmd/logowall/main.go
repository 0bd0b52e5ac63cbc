package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fortium-partners/logo-wall/internal/config"
	"github.com/fortium-partners/logo-wall/internal/gateway"
	"github.com/fortium-partners/logo-wall/internal/health"
	"github.com/fortium-partners/logo-wall/internal/logodev"
	"github.com/fortium-partners/logo-wall/internal/metrics"
	"github.com/fortium-partners/logo-wall/internal/oauth"
	"github.com/fortium-partners/logo-wall/internal/partner"
	"github.com/fortium-partners/logo-wall/pkg/tokenstore"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	resources, err := cfg.Resources()
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.ResourcesFile).Msg("failed to load partner resources")
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("static_dir", cfg.StaticDir).
		Int("partner_resources", len(resources)).
		Msg("starting logo wall gateway")

	// Environment check: missing upstream settings are not fatal
	for _, s := range cfg.EnvCheck() {
		if s.Set {
			logger.Info().Str("env", s.Name).Msg("set")
		} else {
			logger.Warn().Str("env", s.Name).Msg("missing")
		}
	}

	m := metrics.New()
	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}

	fetcher := oauth.NewFetcher(cfg.TokenEndpoint, httpClient, logger)
	tokens := oauth.NewCache(fetcher, oauth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Audience:     cfg.Audience,
	}, logger,
		oauth.WithSafetyMargin(cfg.TokenSafetyMargin),
		oauth.WithObserver(m.RecordTokenRefresh),
	)
	m.TrackTokenState(func() float64 { return tokenStateValue(tokens.State()) })

	partnerClient := partner.NewClient(cfg.PartnerAPIURL, tokens, httpClient, logger)
	logoClient := logodev.NewClient(logodev.Config{
		BaseURL:          cfg.LogoAPIURL,
		SearchToken:      cfg.LogoSearchToken,
		LegacyAuthHeader: cfg.LogoLegacyAuthHeader,
	}, httpClient, logger)

	checker := health.NewChecker(logger)
	checker.Register("partner_config", health.ConfiguredCheck(cfg.PartnerAPIURL != "" && cfg.TokenEndpoint != ""))
	checker.Register("partner_token", health.TokenCheck(tokens.State))
	checker.Register("logo_config", health.ConfiguredCheck(cfg.LogoSearchToken != ""))

	server := gateway.NewServer(gateway.ServerConfig{
		ListenAddr:      cfg.ListenAddr(),
		CORSOrigins:     cfg.CORSOrigins,
		StaticDir:       cfg.StaticDir,
		PublicLogoToken: cfg.PublicLogoToken(),
		Resources:       resources,
	}, partnerClient, logoClient, checker, m, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("gateway server error")
		}
	}

	if err := server.Shutdown(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("gateway server shutdown error")
	}

	logger.Info().Msg("logo wall gateway stopped")
}

func tokenStateValue(state tokenstore.State) float64 {
	switch state {
	case tokenstore.StateValid:
		return metrics.TokenStateValid
	case tokenstore.StateExpired:
		return metrics.TokenStateExpired
	default:
		return metrics.TokenStateEmpty
	}
}
