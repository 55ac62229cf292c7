package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dattormm/datto-go/internal/tokensource"
)

// fakePlatform serves the token endpoint and one API route.
type fakePlatform struct {
	server     *httptest.Server
	tokenCalls atomic.Int32
	rejectAuth bool
	lastAuth   atomic.Value
}

func newFakePlatform(t *testing.T, rejectAuth bool) *fakePlatform {
	t.Helper()

	f := &fakePlatform{rejectAuth: rejectAuth}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/public/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if f.rejectAuth {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid_client"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"upstream-token","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("GET /api/v2/account", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":1,"uid":"acc","name":"Acme"}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func testConfig(t *testing.T, baseURL string) *Config {
	t.Helper()

	cfg, err := LoadConfig("", map[string]any{
		"auth.storage":    "env",
		"auth.api_key":    "key",
		"auth.api_secret": "secret",
		"client.base_url": baseURL,
		"proxy.addr":      "127.0.0.1:0",
	}, environ())
	require.NoError(t, err)
	return cfg
}

func TestAppServesAuthenticatedProxy(t *testing.T) {
	upstream := newFakePlatform(t, false)
	cfg := testConfig(t, upstream.server.URL+"/api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := New(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(1), upstream.tokenCalls.Load(), "token fetched eagerly")
	assert.Equal(t, tokensource.StateValid, application.Client().TokenState())

	done := make(chan error, 1)
	go func() { done <- application.Start(ctx) }()

	var base string
	select {
	case addr := <-application.Started():
		base = "http://" + addr.String()
	case err := <-done:
		t.Fatalf("app exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not start")
	}

	resp, err := http.Get(base + "/health/readiness")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/api/v2/account")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":1,"uid":"acc","name":"Acme"}`, string(body))
	assert.Equal(t, "Bearer upstream-token", upstream.lastAuth.Load())
	assert.Equal(t, int32(1), upstream.tokenCalls.Load(), "cached token reused")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestAppRejectedCredentials(t *testing.T) {
	upstream := newFakePlatform(t, true)
	cfg := testConfig(t, upstream.server.URL+"/api")

	_, err := New(context.Background(), cfg)
	require.Error(t, err)

	var authErr *tokensource.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestAppMissingCredentials(t *testing.T) {
	cfg, err := LoadConfig("", map[string]any{"auth.storage": "env"}, environ())
	require.NoError(t, err)

	_, err = New(context.Background(), cfg)
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestAppStartFailsOnBusyAddress(t *testing.T) {
	upstream := newFakePlatform(t, false)
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := testConfig(t, upstream.server.URL+"/api")
	cfg.Proxy.Addr = busy.Listener.Addr().String()

	application, err := New(context.Background(), cfg)
	require.NoError(t, err)

	err = application.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy startup failed")
}
