// Package logodev looks up company logos through the logo.dev search API.
package logodev

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	gwerrors "github.com/fortium-partners/logo-wall/internal/errors"
	"github.com/fortium-partners/logo-wall/internal/requestid"
)

// DefaultBaseURL is the public logo.dev API.
const DefaultBaseURL = "https://api.logo.dev"

const service = "logo"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SearchResult is the part of a search hit the gateway reads.
type SearchResult struct {
	Name    string `json:"name"`
	Domain  string `json:"domain"`
	LogoURL string `json:"logo_url"`
}

// Config holds logo client settings.
type Config struct {
	BaseURL     string
	SearchToken string
	// LegacyAuthHeader sends the malformed "Bearer: <token>" form some deployments still expect.
	LegacyAuthHeader bool
}

// Client wraps the logo search endpoint.
type Client struct {
	baseURL    string
	token      string
	legacy     bool
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewClient creates a new logo search client.
func NewClient(cfg Config, httpClient HTTPClient, logger zerolog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		token:      cfg.SearchToken,
		legacy:     cfg.LegacyAuthHeader,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "logodev").Logger(),
	}
}

func (c *Client) authHeader() string {
	if c.legacy {
		return "Bearer: " + c.token
	}
	return "Bearer " + c.token
}

// Search returns the logo URL of the first hit for domain.
//
// A non-2xx answer or an empty result set is ErrNotFound; an unreadable body
// is ErrUpstreamResource; a transport failure is returned unclassified.
func (c *Client) Search(ctx context.Context, domain string) (string, error) {
	u := c.baseURL + "/search?" + url.Values{"q": {domain}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("searching logo for %q: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", gwerrors.NewNotFoundError(service, resp.StatusCode,
			fmt.Sprintf("search %q rejected: %s", domain, respBody))
	}

	var results []SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", gwerrors.WrapResource(service, "decoding search results", err)
	}
	if len(results) == 0 {
		return "", gwerrors.NewNotFoundError(service, resp.StatusCode,
			fmt.Sprintf("no results for %q", domain))
	}
	if results[0].LogoURL == "" {
		return "", gwerrors.NewNotFoundError(service, resp.StatusCode,
			fmt.Sprintf("first result for %q has no logo", domain))
	}

	c.logger.Debug().
		Str("domain", domain).
		Int("results", len(results)).
		Str("request_id", requestid.FromContext(ctx)).
		Msg("logo found")
	return results[0].LogoURL, nil
}
