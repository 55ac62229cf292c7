// Package tokensource acquires and caches OAuth2 client-credentials tokens
// for the Datto RMM API.
//
// Datto RMM issues access tokens from a per-platform token endpoint. The
// grant is authenticated with HTTP Basic credentials built directly from the
// API key and secret (base64 of "key:secret", no URL escaping), which is why
// ClientCredentials performs the request by hand instead of going through
// golang.org/x/oauth2/clientcredentials.
//
// # Fetching a token
//
//	cc := &tokensource.ClientCredentials{
//	  TokenURL:    platform.Merlot.TokenEndpoint(),
//	  Credentials: tokensource.Credentials{APIKey: key, APISecret: secret},
//	}
//	token, err := cc.Token(ctx)
//
// # Caching
//
// Cache wraps a fetch function and hands out the cached access token until
// it comes within the expiry buffer (5 minutes by default) of its expiry.
// Concurrent callers that find the token stale share a single refresh:
//
//	cache := tokensource.NewCache(cc.Token)
//	accessToken, err := cache.Token(ctx)
//
// Cache.TokenSource adapts the cache to oauth2.TokenSource for use with
// oauth2.Transport.
package tokensource
