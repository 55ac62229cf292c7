package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every token request made with the default HTTP client.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept in AuthError.
const maxErrorBody = 64 << 10

// grantBody is the form-encoded client-credentials grant.
const grantBody = "grant_type=client_credentials"

// ClientCredentials performs the Datto RMM client-credentials grant.
type ClientCredentials struct {
	// TokenURL is the platform token endpoint.
	TokenURL    string
	Credentials Credentials
	// HTTPClient sends the grant request. A client with DefaultTimeout is used when nil.
	HTTPClient *http.Client
}

var defaultClient = &http.Client{Timeout: DefaultTimeout}

// Token requests a new access token. The returned token has Expiry set from
// expires_in relative to the moment the request was sent.
//
// A non-success status yields *AuthError. Failures to send the request or to
// decode the response yield *TransportError.
func (c *ClientCredentials) Token(ctx context.Context) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(grantBody))
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.Credentials.basicAuth())

	client := c.HTTPClient
	if client == nil {
		client = defaultClient
	}

	now := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "send", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Body is informational only; a read failure leaves it empty.
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			body = nil
		}
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token oauth2.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, &TransportError{Op: "decode", Err: err}
	}
	if token.AccessToken == "" {
		return nil, &TransportError{Op: "decode", Err: errors.New("response has no access_token")}
	}
	if token.ExpiresIn < 0 {
		return nil, &TransportError{Op: "decode", Err: fmt.Errorf("negative expires_in %d", token.ExpiresIn)}
	}

	// Expiry is derived from now, which keeps the monotonic clock reading.
	token.Expiry = now.Add(time.Duration(token.ExpiresIn) * time.Second)

	return &token, nil
}
