package oauth

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/fortium-partners/logo-wall/internal/requestid"
	"github.com/fortium-partners/logo-wall/pkg/tokenstore"
)

// DefaultSafetyMargin is subtracted from the advertised lifetime so the token
// is replaced before the upstream stops accepting it.
const DefaultSafetyMargin = 5 * time.Minute

const refreshKey = "access_token"

// TokenFetcher is satisfied by *Fetcher.
type TokenFetcher interface {
	Fetch(ctx context.Context, creds Credentials) (*TokenResponse, error)
}

// RefreshObserver is told about every refresh attempt ("success" or "error").
type RefreshObserver func(result string)

// Cache hands out a valid partner API token, refreshing it lazily.
// Concurrent callers that find no valid token share a single fetch.
type Cache struct {
	fetcher  TokenFetcher
	creds    Credentials
	margin   time.Duration
	slot     *tokenstore.Slot
	group    singleflight.Group
	now      func() time.Time
	observer RefreshObserver
	logger   zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(d time.Duration) Option {
	return func(c *Cache) { c.margin = d }
}

// WithObserver registers a refresh observer.
func WithObserver(fn RefreshObserver) Option {
	return func(c *Cache) { c.observer = fn }
}

// NewCache creates an empty token cache.
func NewCache(fetcher TokenFetcher, creds Credentials, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		creds:   creds,
		margin:  DefaultSafetyMargin,
		slot:    tokenstore.NewSlot(),
		now:     time.Now,
		logger:  logger.With().Str("component", "token_cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a valid access token, fetching a new one when the cached
// token is absent or expired. On failure the cached state is left untouched.
func (c *Cache) Token(ctx context.Context) (string, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Apply sets the Authorization header of req to the current bearer token.
func (c *Cache) Apply(req *http.Request) error {
	tok, err := c.token(req.Context())
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}

// State reports whether a valid token is cached right now.
func (c *Cache) State() tokenstore.State {
	return c.slot.State(c.now())
}

// ExpiresAt returns the computed expiry of the cached token.
func (c *Cache) ExpiresAt() time.Time {
	return c.slot.ExpiresAt()
}

func (c *Cache) token(ctx context.Context) (*oauth2.Token, error) {
	if tok, err := c.slot.Get(c.now()); err == nil {
		c.logger.Debug().Msg("using cached access token")
		return tok, nil
	}

	v, err, shared := c.group.Do(refreshKey, func() (interface{}, error) {
		// A flight that finished between our check and Do already stored a token.
		if tok, err := c.slot.Get(c.now()); err == nil {
			return tok, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug().Msg("joined in-flight token refresh")
	}
	return v.(*oauth2.Token), nil
}

func (c *Cache) refresh(ctx context.Context) (*oauth2.Token, error) {
	prev := c.slot.State(c.now())
	logger := c.logger.With().Str("request_id", requestid.FromContext(ctx)).Logger()
	logger.Info().Str("state", string(prev)).Msg("requesting new access token")

	resp, err := c.fetcher.Fetch(ctx, c.creds)
	if err != nil {
		logger.Error().Err(err).Str("state", string(prev)).Msg("access token refresh failed")
		c.observe("error")
		return nil, err
	}

	fetchedAt := c.now()
	tok := &oauth2.Token{
		AccessToken: resp.AccessToken,
		TokenType:   "Bearer",
		Expiry:      fetchedAt.Add(resp.Lifetime() - c.margin),
	}
	if err := c.slot.Set(tok); err != nil {
		c.observe("error")
		return nil, err
	}

	evt := logger.Info().
		Str("token_preview", preview(tok.AccessToken)).
		Time("expires_at", tok.Expiry).
		Dur("lifetime", resp.Lifetime())
	if sub, exp, ok := tokenInfo(tok.AccessToken); ok {
		evt = evt.Str("subject", sub).Time("jwt_exp", exp)
	}
	evt.Msg("access token refreshed")

	c.observe("success")
	return tok, nil
}

func (c *Cache) observe(result string) {
	if c.observer != nil {
		c.observer(result)
	}
}
