// Package dattoclient provides an authenticated client for the Datto RMM API.
//
// New selects the regional platform, performs the OAuth2 client-credentials
// grant once, and returns a Client whose token is refreshed lazily:
//
//	client, err := dattoclient.New(ctx, platform.Merlot, dattoclient.Credentials{
//	  APIKey:    os.Getenv("DATTO_API_KEY"),
//	  APISecret: os.Getenv("DATTO_API_SECRET"),
//	})
//
// Requests for the API itself can be made three ways:
//
//   - call EnsureToken and set "Authorization: Bearer <token>" on a request
//     sent with HTTPClient;
//   - build the request with NewRequest and send it with Do;
//   - wrap an existing transport with Transport.
//
// Non-success API responses are turned into *APIError by CheckResponse.
// Token failures surface as *tokensource.AuthError (the token endpoint
// rejected the credentials) or *tokensource.TransportError (network or
// decoding failure).
package dattoclient
