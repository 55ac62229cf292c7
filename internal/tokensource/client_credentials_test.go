package tokensource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCredentials = Credentials{APIKey: "test-key", APISecret: "test-secret"}

// newTokenServer serves the token endpoint with the given handler and fails
// the test on requests that do not look like a client-credentials grant.
func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/public/oauth/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("test-key:test-secret"))
		assert.Equal(t, wantAuth, r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "grant_type=client_credentials", string(body))

		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return server
}

func writeToken(w http.ResponseWriter, accessToken string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer","expires_in":%d,"scope":"default"}`, accessToken, expiresIn)
}

func TestClientCredentialsToken(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "access-1", 3600)
	})

	cc := &ClientCredentials{
		TokenURL:    server.URL + "/api/public/oauth/token",
		Credentials: testCredentials,
		HTTPClient:  server.Client(),
	}

	before := time.Now()
	token, err := cc.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, int64(3600), token.ExpiresIn)
	assert.WithinRange(t, token.Expiry, before.Add(time.Hour), time.Now().Add(time.Hour))
}

func TestClientCredentialsTokenDefaultClient(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "access-default", 60)
	})

	cc := &ClientCredentials{
		TokenURL:    server.URL + "/api/public/oauth/token",
		Credentials: testCredentials,
	}

	token, err := cc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-default", token.AccessToken)
}

func TestClientCredentialsAuthError(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "invalid_client")
	})

	cc := &ClientCredentials{
		TokenURL:    server.URL + "/api/public/oauth/token",
		Credentials: testCredentials,
		HTTPClient:  server.Client(),
	}

	_, err := cc.Token(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, "invalid_client", authErr.Body)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid_client")

	var transportErr *TransportError
	assert.False(t, errors.As(err, &transportErr))
}

func TestClientCredentialsDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"access_token":`},
		{name: "missing access token", body: `{"expires_in":3600}`},
		{name: "string expires_in", body: `{"access_token":"a","expires_in":"soon"}`},
		{name: "negative expires_in", body: `{"access_token":"a","expires_in":-5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})

			cc := &ClientCredentials{
				TokenURL:    server.URL + "/api/public/oauth/token",
				Credentials: testCredentials,
				HTTPClient:  server.Client(),
			}

			_, err := cc.Token(context.Background())

			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			assert.Equal(t, "decode", transportErr.Op)

			var authErr *AuthError
			assert.False(t, errors.As(err, &authErr))
		})
	}
}

func TestClientCredentialsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/api/public/oauth/token"
	server.Close()

	cc := &ClientCredentials{TokenURL: url, Credentials: testCredentials}

	_, err := cc.Token(context.Background())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "send", transportErr.Op)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestClientCredentialsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client := server.Client()
	client.Timeout = 50 * time.Millisecond

	cc := &ClientCredentials{
		TokenURL:    server.URL + "/api/public/oauth/token",
		Credentials: testCredentials,
		HTTPClient:  client,
	}

	_, err := cc.Token(context.Background())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "send", transportErr.Op)
}

func TestClientCredentialsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cc := &ClientCredentials{TokenURL: "http://127.0.0.1:0/token", Credentials: testCredentials}

	_, err := cc.Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCredentialsRedaction(t *testing.T) {
	creds := Credentials{APIKey: "visible-key", APISecret: "visible-secret"}

	for _, formatted := range []string{
		creds.String(),
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%+v", creds),
		fmt.Sprintf("%#v", creds),
		creds.LogValue().String(),
	} {
		assert.NotContains(t, formatted, "visible-key")
		assert.NotContains(t, formatted, "visible-secret")
		assert.True(t, strings.Contains(formatted, redacted), formatted)
	}

	assert.False(t, creds.IsZero())
	assert.True(t, Credentials{APIKey: "k"}.IsZero())
	assert.True(t, Credentials{}.IsZero())
}
