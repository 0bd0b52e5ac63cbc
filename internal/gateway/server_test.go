package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortium-partners/logo-wall/internal/config"
	"github.com/fortium-partners/logo-wall/internal/health"
	"github.com/fortium-partners/logo-wall/internal/logodev"
	"github.com/fortium-partners/logo-wall/internal/metrics"
	"github.com/fortium-partners/logo-wall/internal/oauth"
	"github.com/fortium-partners/logo-wall/internal/partner"
)

const usersBody = `{"data":[{"id":7,"name":"Ada Lovelace","company":"Analytical"}],"page":1}`

// upstreams fakes the token endpoint, the partner API and the logo API.
type upstreams struct {
	tokenCalls   atomic.Int32
	partnerCalls atomic.Int32

	partnerRequestID atomic.Value
	logoQuery        atomic.Value

	tokenStatus   int
	partnerStatus int
	partnerBody   string
	logoStatus    int
	logoBody      string

	token   *httptest.Server
	partner *httptest.Server
	logo    *httptest.Server
}

func newUpstreams(t *testing.T) *upstreams {
	t.Helper()
	u := &upstreams{
		tokenStatus:   http.StatusOK,
		partnerStatus: http.StatusOK,
		partnerBody:   usersBody,
		logoStatus:    http.StatusOK,
		logoBody:      `[{"name":"Acme","logo_url":"https://img.logo.dev/acme.com"}]`,
	}

	u.token = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.tokenCalls.Add(1)
		w.WriteHeader(u.tokenStatus)
		w.Write([]byte(`{"access_token":"partner-token","token_type":"Bearer","expires_in":86400}`))
	}))
	u.partner = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.partnerCalls.Add(1)
		u.partnerRequestID.Store(r.Header.Get("X-Request-ID"))
		assert.Equal(t, "Bearer partner-token", r.Header.Get("Authorization"))
		w.WriteHeader(u.partnerStatus)
		w.Write([]byte(u.partnerBody))
	}))
	u.logo = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.logoQuery.Store(r.URL.Query().Get("q"))
		w.WriteHeader(u.logoStatus)
		w.Write([]byte(u.logoBody))
	}))

	t.Cleanup(func() {
		u.token.Close()
		u.partner.Close()
		u.logo.Close()
	})
	return u
}

func staticDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html": "<html>wall</html>",
		"embed.html": "<html>embed</html>",
		"app.js":     "console.log('wall')",
		".env":       "FORTIUM_CLIENT_SECRET=shh",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

// testApp wires the real token cache and upstream clients against fakes.
func testApp(t *testing.T, u *upstreams, cfg ServerConfig) (*fiber.App, *metrics.Metrics) {
	t.Helper()
	logger := zerolog.Nop()

	fetcher := oauth.NewFetcher(u.token.URL, u.token.Client(), logger)
	cache := oauth.NewCache(fetcher, oauth.Credentials{ClientID: "id", ClientSecret: "secret"}, logger)
	partnerClient := partner.NewClient(u.partner.URL, cache, u.partner.Client(), logger)
	logoClient := logodev.NewClient(logodev.Config{BaseURL: u.logo.URL, SearchToken: "sk"}, u.logo.Client(), logger)

	checker := health.NewChecker(logger)
	checker.Register("partner_token", health.TokenCheck(cache.State))

	if cfg.Resources == nil {
		cfg.Resources = config.DefaultResources()
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = staticDir(t)
	}
	m := metrics.New()
	srv := NewServer(cfg, partnerClient, logoClient, checker, m, logger)
	return srv.App(), m
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_Users_RelaysBody(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{CORSOrigins: "*"})

	resp, body := get(t, app, "/api/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, usersBody, body)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestServer_Users_UpstreamError(t *testing.T) {
	u := newUpstreams(t)
	u.partnerStatus = http.StatusBadGateway
	u.partnerBody = `{"internal":"stack trace with secrets"}`
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/users")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `{"error":"Failed to fetch users"}`, body)
}

func TestServer_Companies_TokenFailure(t *testing.T) {
	u := newUpstreams(t)
	u.tokenStatus = http.StatusUnauthorized
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/companies")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `{"error":"Failed to fetch companies"}`, body)
	assert.Equal(t, int32(0), u.partnerCalls.Load())
}

func TestServer_TokenReusedAcrossRequests(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	for i := 0; i < 3; i++ {
		resp, _ := get(t, app, "/api/users")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = get(t, app, "/api/companies")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, int32(1), u.tokenCalls.Load())
	assert.Equal(t, int32(6), u.partnerCalls.Load())
}

func TestServer_CustomResource(t *testing.T) {
	u := newUpstreams(t)
	u.partnerStatus = http.StatusNotFound
	app, _ := testApp(t, u, ServerConfig{
		Resources: []config.Resource{{Name: "practices", Path: "/api/practices", Upstream: "/v2/practices"}},
	})

	resp, body := get(t, app, "/api/practices")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `{"error":"Failed to fetch practices"}`, body)

	resp, _ = get(t, app, "/api/users")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Logo(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/logo/acme.com")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"logoUrl":"https://img.logo.dev/acme.com"}`, body)
}

func TestServer_Logo_EscapedSlashReachesHandler(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/logo/foo%2Fbar")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"logoUrl":"https://img.logo.dev/acme.com"}`, body)
	assert.Equal(t, "foo/bar", u.logoQuery.Load())
}

func TestServer_Logo_NullBody(t *testing.T) {
	u := newUpstreams(t)
	u.logoBody = `null`
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/logo/acme.com")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, `{"error":"Logo not found"}`, body)
}

func TestServer_Logo_EmptyResults(t *testing.T) {
	u := newUpstreams(t)
	u.logoBody = `[]`
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/logo/unknown-domain")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, `{"error":"Logo not found"}`, body)
}

func TestServer_Logo_UpstreamNon2xx(t *testing.T) {
	u := newUpstreams(t)
	u.logoStatus = http.StatusTooManyRequests
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/logo/acme.com")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, `{"error":"Logo not found"}`, body)
}

func TestServer_Logo_MalformedBody(t *testing.T) {
	u := newUpstreams(t)
	u.logoBody = `not json`
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/logo/acme.com")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `{"error":"Failed to fetch logo"}`, body)
}

func TestServer_Logo_TransportError(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})
	u.logo.Close()

	resp, body := get(t, app, "/api/logo/acme.com")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `{"error":"Failed to fetch logo"}`, body)
}

func TestServer_Config(t *testing.T) {
	u := newUpstreams(t)

	app, _ := testApp(t, u, ServerConfig{})
	_, body := get(t, app, "/api/config")
	assert.Equal(t, `{"logodevToken":"pk_demo_token"}`, body)

	app, _ = testApp(t, u, ServerConfig{PublicLogoToken: "pk_live"})
	_, body = get(t, app, "/api/config")
	assert.Equal(t, `{"logodevToken":"pk_live"}`, body)
}

func TestServer_Probes(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, body = get(t, app, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var ready map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &ready))
	assert.Equal(t, "ready", ready["status"])
	assert.Equal(t, "degraded", ready["checks"].(map[string]interface{})["partner_token"])

	get(t, app, "/api/users")
	_, body = get(t, app, "/readyz")
	assert.Contains(t, body, `"partner_token":"ok"`)
}

func TestServer_Metrics(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	get(t, app, "/api/users")
	resp, body := get(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `gateway_requests_total{code="200",route="/api/users"} 1`)
	assert.Contains(t, body, `gateway_upstream_requests_total{outcome="ok",upstream="partner"} 1`)
}

func TestServer_StaticPages(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>wall</html>", body)

	resp, body = get(t, app, "/embed")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>embed</html>", body)

	resp, body = get(t, app, "/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log('wall')", body)
}

func TestServer_DotfilesHidden(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	for _, path := range []string{"/.env", "/%2Eenv"} {
		resp, body := get(t, app, path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.NotContains(t, body, "shh", path)
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	resp, body := get(t, app, "/api/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, `{"error":"Not found"}`, body)
}

func TestServer_CORS(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{CORSOrigins: "*"})

	req, _ := http.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Origin", "https://partners.example.com")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_RequestIDHeader(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	resp, _ := get(t, app, "/api/config")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_RequestIDForwardedToPartner(t *testing.T) {
	u := newUpstreams(t)
	app, _ := testApp(t, u, ServerConfig{})

	resp, _ := get(t, app, "/api/users")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := resp.Header.Get("X-Request-ID")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, u.partnerRequestID.Load())
}
