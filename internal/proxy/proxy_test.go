package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"

	"github.com/dattormm/datto-go/internal/tokensource"
)

type staticReadiness bool

func (s staticReadiness) IsReady() bool { return bool(s) }

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

// upstreamStub records the last request it served.
type upstreamStub struct {
	server *httptest.Server
	hits   atomic.Int32
	last   atomic.Pointer[http.Request]
}

func newUpstream(t *testing.T, status int, body string) *upstreamStub {
	t.Helper()

	u := &upstreamStub{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.last.Store(r.Clone(context.Background()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(u.server.Close)
	return u
}

func newTestProxy(t *testing.T, target string, tokens oauth2.TokenSource, opts ...Option) *httptest.Server {
	t.Helper()

	p, err := New(target, tokens, staticReadiness(true), opts...)
	require.NoError(t, err)

	server := httptest.NewServer(p)
	t.Cleanup(server.Close)
	return server
}

func staticTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Err
}

func TestForwardInjectsBearerToken(t *testing.T) {
	upstream := newUpstream(t, http.StatusOK, `{"id":7}`)
	server := newTestProxy(t, upstream.server.URL+"/api", staticTokens())

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v2/account/devices?max=50", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer caller-supplied")
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set(requestIDHeader, "req-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7}`, string(body))
	assert.Equal(t, "req-123", resp.Header.Get(requestIDHeader))

	got := upstream.last.Load()
	require.NotNil(t, got)
	assert.Equal(t, "/api/v2/account/devices", got.URL.Path)
	assert.Equal(t, "max=50", got.URL.RawQuery)
	assert.Equal(t, "Bearer test-token", got.Header.Get("Authorization"))
	assert.Empty(t, got.Header.Get("Cookie"))
	assert.Equal(t, "req-123", got.Header.Get(requestIDHeader))
}

func TestForwardPassesUpstreamErrorsThrough(t *testing.T) {
	upstream := newUpstream(t, http.StatusNotFound, `{"message":"Not found"}`)
	server := newTestProxy(t, upstream.server.URL+"/api", staticTokens())

	resp, err := http.Get(server.URL + "/api/v2/site/missing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Not found"}`, string(body))
}

func TestRequestIDGenerated(t *testing.T) {
	upstream := newUpstream(t, http.StatusOK, `{}`)
	server := newTestProxy(t, upstream.server.URL+"/api", staticTokens())

	resp, err := http.Get(server.URL + "/api/v2/account")
	require.NoError(t, err)
	_ = resp.Body.Close()

	id := resp.Header.Get(requestIDHeader)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, upstream.last.Load().Header.Get(requestIDHeader))
}

func TestTraceContextPropagated(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	upstream := newUpstream(t, http.StatusOK, `{}`)
	server := newTestProxy(t, upstream.server.URL+"/api", staticTokens())

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v2/account", nil)
	require.NoError(t, err)
	req.Header.Set("Traceparent", traceparent)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, traceparent, upstream.last.Load().Header.Get("Traceparent"))
}

func TestTokenFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{
			name:     "credentials rejected",
			err:      &tokensource.AuthError{StatusCode: http.StatusUnauthorized, Body: `{"error":"invalid_client"}`},
			wantType: "authentication_error",
		},
		{
			name:     "token endpoint unreachable",
			err:      &tokensource.TransportError{Op: "send", Err: errors.New("connection refused")},
			wantType: "token_error",
		},
		{
			name:     "other failure",
			err:      errors.New("boom"),
			wantType: "api_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := newUpstream(t, http.StatusOK, `{}`)
			tokens := tokenSourceFunc(func() (*oauth2.Token, error) { return nil, tt.err })
			server := newTestProxy(t, upstream.server.URL+"/api", tokens)

			resp, err := http.Get(server.URL + "/api/v2/account")
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
			assert.Equal(t, tt.wantType, decodeError(t, resp).Type)
			assert.Zero(t, upstream.hits.Load())
		})
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	upstream := newUpstream(t, http.StatusOK, `{}`)
	target := upstream.server.URL + "/api"
	upstream.server.Close()

	server := newTestProxy(t, target, staticTokens())

	resp, err := http.Get(server.URL + "/api/v2/account")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "api_error", decodeError(t, resp).Type)
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		ready      bool
		wantStatus int
		wantBody   string
	}{
		{name: "liveness", path: "/health/liveness", ready: false, wantStatus: http.StatusOK, wantBody: `{"status":"alive"}`},
		{name: "ready", path: "/health/readiness", ready: true, wantStatus: http.StatusOK, wantBody: `{"status":"ready"}`},
		{name: "not ready", path: "/health/readiness", ready: false, wantStatus: http.StatusServiceUnavailable, wantBody: `{"status":"not_ready"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New("https://merlot-api.centrastage.net/api", staticTokens(), staticReadiness(tt.ready))
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	p, err := New("https://merlot-api.centrastage.net/api", staticTokens(), staticReadiness(true))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/account", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found_error")
}

func TestRequestSizeLimit(t *testing.T) {
	upstream := newUpstream(t, http.StatusOK, `{}`)
	server := newTestProxy(t, upstream.server.URL+"/api", staticTokens(), WithMaxRequestBytes(8))

	resp, err := http.Post(server.URL+"/api/v2/site", "application/json", strings.NewReader(`{"name":"far too long"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Zero(t, upstream.hits.Load())
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/account", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "server_error")
}

func TestNewValidation(t *testing.T) {
	_, err := New("https://merlot-api.centrastage.net/api", nil, staticReadiness(true))
	require.Error(t, err)

	_, err = New("https://merlot-api.centrastage.net/api", staticTokens(), nil)
	require.Error(t, err)

	_, err = New("not a url", staticTokens(), staticReadiness(true))
	require.Error(t, err)
}

func TestStartShutdown(t *testing.T) {
	p, err := New("https://merlot-api.centrastage.net/api", staticTokens(), staticReadiness(true))
	require.NoError(t, err)

	errCh, err := p.Start(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + p.Addr().String() + "/health/liveness")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, p.Shutdown(context.Background()))

	err, open := <-errCh
	assert.NoError(t, err)
	assert.False(t, open)
}
