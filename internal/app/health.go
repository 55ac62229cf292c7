package app

import (
	"sync/atomic"

	"github.com/dattormm/datto-go/internal/proxy"
	"github.com/dattormm/datto-go/internal/tokensource"
)

// TokenStater reports the state of an access token cache.
// *dattoclient.Client implements it.
type TokenStater interface {
	TokenState() tokensource.State
}

// Health manages the application's health status for health check endpoints.
// All methods are thread-safe.
type Health struct {
	ready  atomic.Bool
	tokens TokenStater
}

// Compile-time check that Health implements proxy.ReadinessChecker interface
var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth creates a new Health instance initialized as not ready.
// tokens may be nil, in which case only the ready flag counts.
func NewHealth(tokens TokenStater) *Health {
	return &Health{tokens: tokens}
}

// SetReady updates the application's readiness state.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the application is started and holds an access
// token. A failed refresh empties the cache and clears readiness until the
// next successful fetch.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return h.tokens == nil || h.tokens.TokenState() != tokensource.StateEmpty
}
