// Package partner relays read requests to the OAuth2-protected partner API.
package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	gwerrors "github.com/fortium-partners/logo-wall/internal/errors"
	"github.com/fortium-partners/logo-wall/internal/requestid"
)

const service = "partner"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator applies authentication to requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// Client wraps the partner REST API. Response bodies are not interpreted.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	auth       Authenticator
	logger     zerolog.Logger
}

// NewClient creates a new partner API client.
func NewClient(baseURL string, auth Authenticator, httpClient HTTPClient, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
		logger:     logger.With().Str("component", "partner").Logger(),
	}
}

// Get fetches path and returns the upstream JSON body unchanged.
// Token failures surface as ErrUpstreamAuth, everything else as ErrUpstreamResource.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, gwerrors.NewResourceError(service, 0, "partner API URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, gwerrors.WrapResource(service, "creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	rid := requestid.FromContext(ctx)
	if rid != "" {
		req.Header.Set(requestid.Header, rid)
	}

	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("applying auth: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gwerrors.WrapResource(service, "executing request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, gwerrors.NewResourceError(service, resp.StatusCode,
			fmt.Sprintf("GET %s: %s", path, respBody))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerrors.WrapResource(service, "reading response", err)
	}
	if !json.Valid(body) {
		return nil, gwerrors.NewResourceError(service, resp.StatusCode,
			fmt.Sprintf("GET %s: response is not JSON", path))
	}

	c.logger.Debug().
		Str("path", path).
		Int("bytes", len(body)).
		Str("request_id", rid).
		Msg("partner resource fetched")
	return json.RawMessage(body), nil
}
