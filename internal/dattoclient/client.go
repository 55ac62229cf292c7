package dattoclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dattormm/datto-go/internal/platform"
	"github.com/dattormm/datto-go/internal/tokensource"
)

// DefaultTimeout bounds every request sent by the client, token requests included.
const DefaultTimeout = tokensource.DefaultTimeout

// Credentials is the API key and secret issued in the Datto RMM web portal.
type Credentials = tokensource.Credentials

// ErrMissingCredentials is returned by New when the API key or secret is empty.
var ErrMissingCredentials = errors.New("datto: api key and api secret are required")

// Client is an authenticated Datto RMM API client.
// It is safe for concurrent use.
type Client struct {
	platform   platform.Platform
	baseURL    string
	httpClient *http.Client
	tokens     *tokensource.Cache
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient   *http.Client
	timeout      time.Duration
	baseURL      string
	expiryBuffer time.Duration
}

// WithHTTPClient sends all requests through client instead of a new one.
// The client's own Timeout is left untouched.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithBaseURL overrides the platform base URL, e.g. for a test server.
// The token endpoint is derived from the override.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithExpiryBuffer sets how long before expiry the access token is refreshed.
func WithExpiryBuffer(d time.Duration) Option {
	return func(o *options) {
		o.expiryBuffer = d
	}
}

// New creates a client for p and fetches the first access token before
// returning. No client is returned when that fetch fails.
func New(ctx context.Context, p platform.Platform, creds Credentials, opts ...Option) (*Client, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("datto: %w", &platform.ParseError{Input: p.String(), Valid: platform.Names()})
	}
	if creds.IsZero() {
		return nil, ErrMissingCredentials
	}

	o := options{
		timeout:      DefaultTimeout,
		baseURL:      p.BaseURL(),
		expiryBuffer: tokensource.DefaultExpiryBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	grant := &tokensource.ClientCredentials{
		TokenURL:    o.baseURL + platform.TokenPath,
		Credentials: creds,
		HTTPClient:  httpClient,
	}

	c := &Client{
		platform:   p,
		baseURL:    o.baseURL,
		httpClient: httpClient,
		tokens:     tokensource.NewCache(grant.Token, tokensource.WithExpiryBuffer(o.expiryBuffer)),
	}

	if _, err := c.EnsureToken(ctx); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "datto client ready", "platform", p.String(), "base_url", c.baseURL)

	return c, nil
}

// Platform returns the platform the client talks to.
func (c *Client) Platform() platform.Platform {
	return c.platform
}

// BaseURL returns the API base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// EnsureToken returns an access token valid for at least the expiry buffer,
// refreshing it when needed. Call it before attaching
// "Authorization: Bearer <token>" to a request sent via HTTPClient.
func (c *Client) EnsureToken(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

// TokenExpiry returns when the cached access token expires.
func (c *Client) TokenExpiry() time.Time {
	return c.tokens.Expiry()
}

// TokenState reports the state of the token cache.
func (c *Client) TokenState() tokensource.State {
	return c.tokens.State()
}

// HTTPClient returns the underlying HTTP client. It does not authenticate
// requests; see EnsureToken, Do and Transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// TokenSource exposes the token cache as an oauth2.TokenSource bound to ctx.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.tokens.TokenSource(ctx)
}

// NewRequest builds a request for path relative to the base URL, e.g. "/v2/account".
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("datto: invalid request path %q: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("datto: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// Do attaches a bearer token to a clone of req and sends it with HTTPClient.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	token, err := c.EnsureToken(req.Context())
	if err != nil {
		return nil, err
	}

	authorized := req.Clone(req.Context())
	authorized.Header.Set("Authorization", "Bearer "+token)

	return c.httpClient.Do(authorized)
}

// Transport returns a RoundTripper that authorizes requests before passing
// them to base, or to http.DefaultTransport when base is nil.
func (c *Client) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{tokens: c.tokens, base: base}
}

// bearerTransport sets the Authorization header using the request context
// for token refreshes.
type bearerTransport struct {
	tokens *tokensource.Cache
	base   http.RoundTripper
}

// Compile-time check that bearerTransport implements http.RoundTripper
var _ http.RoundTripper = (*bearerTransport)(nil)

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	// RoundTrippers must not modify the caller's request.
	authorized := req.Clone(req.Context())
	authorized.Header.Set("Authorization", "Bearer "+token)

	return t.base.RoundTrip(authorized)
}
