package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DemoLogoToken is served to the front-end when LOGODEV_TOKEN is unset.
const DemoLogoToken = "pk_demo_token"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Port        int    `envconfig:"PORT" default:"3000"`
	StaticDir   string `envconfig:"STATIC_DIR" default:"."`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Partner API (OAuth2 client credentials)
	TokenEndpoint     string        `envconfig:"FORTIUM_TOKEN_ENDPOINT"`
	ClientID          string        `envconfig:"FORTIUM_CLIENT_ID"`
	ClientSecret      string        `envconfig:"FORTIUM_CLIENT_SECRET"`
	Audience          string        `envconfig:"FORTIUM_AUDIENCE"`
	PartnerAPIURL     string        `envconfig:"FORTIUM_API_URL"`
	PartnerAPIKey     string        `envconfig:"FORTIUM_API_KEY"` // reported in the env check only
	TokenSafetyMargin time.Duration `envconfig:"TOKEN_SAFETY_MARGIN" default:"5m"`
	ResourcesFile     string        `envconfig:"PARTNER_RESOURCES_FILE"`

	// Logo API
	LogoAPIURL           string `envconfig:"LOGODEV_API_URL" default:"https://api.logo.dev"`
	LogoSearchToken      string `envconfig:"LOGODEV_SEARCH_TOKEN"`
	LogoPublicToken      string `envconfig:"LOGODEV_TOKEN"`
	LogoLegacyAuthHeader bool   `envconfig:"LOGODEV_LEGACY_AUTH_HEADER" default:"false"`

	// 0 keeps the transport default (no timeout).
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"0"`
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// PublicLogoToken returns the token exposed to the browser.
func (c *Config) PublicLogoToken() string {
	if c.LogoPublicToken == "" {
		return DemoLogoToken
	}
	return c.LogoPublicToken
}

// EnvCheck reports which upstream settings are present, keyed by env var.
func (c *Config) EnvCheck() []EnvStatus {
	return []EnvStatus{
		{Name: "FORTIUM_API_URL", Set: c.PartnerAPIURL != ""},
		{Name: "FORTIUM_TOKEN_ENDPOINT", Set: c.TokenEndpoint != ""},
		{Name: "FORTIUM_CLIENT_ID", Set: c.ClientID != ""},
		{Name: "FORTIUM_CLIENT_SECRET", Set: c.ClientSecret != ""},
		{Name: "FORTIUM_API_KEY", Set: c.PartnerAPIKey != ""},
		{Name: "LOGODEV_SEARCH_TOKEN", Set: c.LogoSearchToken != ""},
		{Name: "LOGODEV_TOKEN", Set: c.LogoPublicToken != ""},
	}
}

// EnvStatus is one line of the startup environment check.
type EnvStatus struct {
	Name string
	Set  bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
