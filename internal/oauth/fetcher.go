// Package oauth obtains and caches the partner API bearer token using the
// OAuth2 client-credentials grant.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	gwerrors "github.com/fortium-partners/logo-wall/internal/errors"
)

// GrantClientCredentials is the only grant type the fetcher speaks.
const GrantClientCredentials = "client_credentials"

const tokenService = "token"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials is the JSON body posted to the token endpoint.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience"`
	GrantType    string `json:"grant_type"`
}

// TokenResponse holds the fields of the token endpoint reply the gateway needs.
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   *float64 `json:"expires_in"`
}

// Lifetime returns the advertised token lifetime.
func (r *TokenResponse) Lifetime() time.Duration {
	if r.ExpiresIn == nil {
		return 0
	}
	return time.Duration(*r.ExpiresIn * float64(time.Second))
}

// Fetcher performs the client-credentials exchange. One attempt per call.
type Fetcher struct {
	endpoint   string
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewFetcher creates a fetcher for the given token endpoint.
func NewFetcher(endpoint string, httpClient HTTPClient, logger zerolog.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Fetcher{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "token_fetcher").Logger(),
	}
}

// Fetch posts creds to the token endpoint and decodes the reply.
// Every failure is classified as ErrUpstreamAuth.
func (f *Fetcher) Fetch(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	if f.endpoint == "" {
		return nil, gwerrors.NewAuthError(tokenService, 0, "token endpoint not configured")
	}

	creds.GrantType = GrantClientCredentials
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, gwerrors.WrapAuth(tokenService, "marshaling request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.WrapAuth(tokenService, "creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, gwerrors.WrapAuth(tokenService, "requesting token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, gwerrors.NewAuthError(tokenService, resp.StatusCode,
			fmt.Sprintf("token request failed: %s", respBody))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, gwerrors.WrapAuth(tokenService, "decoding token response", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, gwerrors.NewAuthError(tokenService, resp.StatusCode, "response missing access_token")
	}
	if tokenResp.ExpiresIn == nil {
		return nil, gwerrors.NewAuthError(tokenService, resp.StatusCode, "response missing expires_in")
	}

	f.logger.Debug().
		Int("status", resp.StatusCode).
		Float64("expires_in", *tokenResp.ExpiresIn).
		Msg("token endpoint answered")

	return &tokenResp, nil
}
