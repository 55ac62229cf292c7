// Package proxy serves a local HTTP endpoint that forwards requests to the
// Datto RMM API and attaches a cached bearer token to each of them. Local
// tools can then call the API without handling OAuth themselves.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"

	"github.com/dattormm/datto-go/internal/tokensource"
)

// DefaultMaxRequestBytes limits request bodies accepted for forwarding.
const DefaultMaxRequestBytes int64 = 10 << 20

// ReadinessChecker reports whether the proxy can serve API traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Proxy forwards /api/* to the Datto API. It implements http.Handler.
type Proxy struct {
	handler http.Handler
	server  *http.Server
	addr    net.Addr
}

type options struct {
	transport       http.RoundTripper
	maxRequestBytes int64
	logger          *slog.Logger
}

// Option configures a Proxy.
type Option func(*options)

// WithTransport sets the transport used for upstream requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithMaxRequestBytes overrides DefaultMaxRequestBytes.
func WithMaxRequestBytes(n int64) Option {
	return func(o *options) {
		o.maxRequestBytes = n
	}
}

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a Proxy forwarding to target, the platform API base URL
// (for example https://merlot-api.centrastage.net/api).
func New(target string, tokens oauth2.TokenSource, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if health == nil {
		return nil, errors.New("readiness checker is required")
	}

	upstream, err := url.Parse(strings.TrimSuffix(target, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host are required", target)
	}

	o := options{
		transport:       http.DefaultTransport,
		maxRequestBytes: DefaultMaxRequestBytes,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	forward := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)

			// Callers never supply upstream credentials
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")

			if id := requestIDFromContext(pr.In.Context()); id != "" {
				pr.Out.Header.Set(requestIDHeader, id)
			}
			otel.GetTextMapPropagator().Inject(pr.In.Context(), propagation.HeaderCarrier(pr.Out.Header))
		},
		Transport: &oauth2.Transport{
			Source: tokens,
			Base:   o.transport,
		},
		ErrorHandler: upstreamError,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health/liveness", livenessHandler())
	mux.Handle("GET /health/readiness", readinessHandler(health))
	mux.Handle("/api/", http.StripPrefix("/api", forward))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(r.Context(), w, http.StatusNotFound, "not_found_error",
			fmt.Sprintf("no route for %s; API calls live under /api/", r.URL.Path))
	})

	handler := applyMiddlewares(mux,
		RequestID,
		TraceContext,
		Logging(o.logger),
		Recovery,
		RequestSizeLimit(o.maxRequestBytes),
	)

	return &Proxy{handler: handler}, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. The returned channel
// receives at most one error and is closed when the server stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	p.addr = ln.Addr()
	p.server = &http.Server{
		Handler:           p.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// In-flight requests finish during Shutdown even after ctx is canceled
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.InfoContext(ctx, "proxy listening", "addr", p.addr.String())
	return errCh, nil
}

// Addr returns the listening address once Start has succeeded.
func (p *Proxy) Addr() net.Addr {
	return p.addr
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

// upstreamError maps forwarding failures onto JSON 502 responses.
func upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var authErr *tokensource.AuthError
	var transportErr *tokensource.TransportError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr):
		writeJSONError(ctx, w, http.StatusRequestEntityTooLarge, "invalid_request_error",
			http.StatusText(http.StatusRequestEntityTooLarge))
	case errors.As(err, &authErr):
		slog.ErrorContext(ctx, "upstream rejected credentials", "error", err)
		writeJSONError(ctx, w, http.StatusBadGateway, "authentication_error",
			"Datto API rejected the configured credentials")
	case errors.As(err, &transportErr):
		slog.ErrorContext(ctx, "token endpoint unavailable", "error", err)
		writeJSONError(ctx, w, http.StatusBadGateway, "token_error",
			"could not obtain an access token")
	case errors.Is(err, context.Canceled):
		slog.DebugContext(ctx, "client canceled request", "error", err)
		w.WriteHeader(http.StatusBadGateway)
	default:
		slog.ErrorContext(ctx, "upstream request failed", "error", err)
		writeJSONError(ctx, w, http.StatusBadGateway, "api_error", "upstream request failed")
	}
}
