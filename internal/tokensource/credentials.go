package tokensource

import (
	"encoding/base64"
	"log/slog"
)

const redacted = "[redacted]"

// Credentials is a Datto RMM API key and secret pair.
// Its string and log representations never expose either value.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Compile-time check that Credentials redacts itself in structured logs
var _ slog.LogValuer = Credentials{}

// IsZero reports whether either half of the pair is missing.
func (c Credentials) IsZero() bool {
	return c.APIKey == "" || c.APISecret == ""
}

// basicAuth returns the value of the Authorization header for the token grant.
func (c Credentials) basicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.APIKey+":"+c.APISecret))
}

func (c Credentials) String() string {
	return "Credentials{APIKey: " + redacted + ", APISecret: " + redacted + "}"
}

func (c Credentials) GoString() string {
	return c.String()
}

// LogValue implements slog.LogValuer.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api_key", redacted),
		slog.String("api_secret", redacted),
	)
}
