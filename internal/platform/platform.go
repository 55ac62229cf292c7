// Package platform enumerates the regional Datto RMM deployments.
//
// Every platform serves the same API schema from its own host. A Platform
// resolves to its API base URL and OAuth token endpoint, and round-trips
// through its lowercase name:
//
//	p, err := platform.Parse("Merlot")
//	p.BaseURL()       // https://merlot-api.centrastage.net/api
//	p.TokenEndpoint() // https://merlot-api.centrastage.net/api/public/oauth/token
//	p.String()        // merlot
package platform

import (
	"fmt"
	"strings"
)

// TokenPath is appended to a platform base URL to form its OAuth token endpoint.
const TokenPath = "/public/oauth/token"

// Platform identifies one regional Datto RMM deployment.
type Platform int

const (
	Pinotage Platform = iota
	Merlot
	Concord
	Vidal
	Zinfandel
	Syrah
)

// registry is the single source of truth for names and URLs, indexed by Platform.
var registry = [...]struct {
	name    string
	baseURL string
}{
	Pinotage:  {"pinotage", "https://pinotage-api.centrastage.net/api"},
	Merlot:    {"merlot", "https://merlot-api.centrastage.net/api"},
	Concord:   {"concord", "https://concord-api.centrastage.net/api"},
	Vidal:     {"vidal", "https://vidal-api.centrastage.net/api"},
	Zinfandel: {"zinfandel", "https://zinfandel-api.centrastage.net/api"},
	Syrah:     {"syrah", "https://syrah-api.centrastage.net/api"},
}

// All returns every platform in declaration order.
// The returned slice is a fresh copy and may be modified by the caller.
func All() []Platform {
	all := make([]Platform, len(registry))
	for i := range registry {
		all[i] = Platform(i)
	}
	return all
}

// Names returns the canonical platform names in the order of All.
func Names() []string {
	names := make([]string, len(registry))
	for i, entry := range registry {
		names[i] = entry.name
	}
	return names
}

// Parse resolves a platform name, ignoring case.
// Unknown input yields a *ParseError carrying the input as given.
func Parse(s string) (Platform, error) {
	normalized := strings.ToLower(s)
	for i, entry := range registry {
		if entry.name == normalized {
			return Platform(i), nil
		}
	}
	return 0, &ParseError{Input: s, Valid: Names()}
}

// Valid reports whether p is one of the declared platforms.
func (p Platform) Valid() bool {
	return p >= 0 && int(p) < len(registry)
}

// BaseURL returns the API base URL, without trailing slash.
func (p Platform) BaseURL() string {
	if !p.Valid() {
		return ""
	}
	return registry[p].baseURL
}

// TokenEndpoint returns the OAuth2 client-credentials token URL.
func (p Platform) TokenEndpoint() string {
	return p.BaseURL() + TokenPath
}

// String returns the lowercase canonical name accepted by Parse.
func (p Platform) String() string {
	if !p.Valid() {
		return fmt.Sprintf("platform(%d)", int(p))
	}
	return registry[p].name
}

// MarshalText implements encoding.TextMarshaler.
func (p Platform) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid platform %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using Parse semantics.
func (p *Platform) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseError reports an unrecognized platform name.
type ParseError struct {
	// Input is the string passed to Parse, before normalization.
	Input string
	// Valid lists the accepted names.
	Valid []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unknown platform '%s'. Valid platforms: %s", e.Input, strings.Join(e.Valid, ", "))
}
