package tokensource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultExpiryBuffer is how long before expiry a cached token is refreshed.
// A token handed out is therefore valid for at least this long.
const DefaultExpiryBuffer = 5 * time.Minute

// FetchFunc obtains a new token, typically (*ClientCredentials).Token.
type FetchFunc func(ctx context.Context) (*oauth2.Token, error)

// State describes the cache slot at a point in time.
type State int

const (
	// StateEmpty means no token is cached.
	StateEmpty State = iota
	// StateValid means the cached token is outside the expiry buffer.
	StateValid
	// StateStale means the cached token is within the expiry buffer or past expiry.
	StateStale
	// StateRefreshing means a refresh request is outstanding.
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Cache holds at most one access token and refreshes it on demand.
// All methods are safe for concurrent use.
//
// Readers share a read lock on the fast path. A refresh performs its network
// call without holding any lock and takes the write lock only to swap the
// cached token. Concurrent refreshes are collapsed into one request.
type Cache struct {
	fetch  FetchFunc
	buffer time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token // replaced wholesale, never mutated

	group      singleflight.Group
	refreshing atomic.Int32
}

// Option configures a Cache.
type Option func(*Cache)

// WithExpiryBuffer sets the safety margin before expiry at which tokens are refreshed.
func WithExpiryBuffer(d time.Duration) Option {
	return func(c *Cache) {
		c.buffer = d
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates an empty cache that obtains tokens from fetch.
func NewCache(fetch FetchFunc, opts ...Option) *Cache {
	c := &Cache{
		fetch:  fetch,
		buffer: DefaultExpiryBuffer,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// refreshKey is the single-flight key; a cache holds exactly one token.
const refreshKey = "access_token"

// Token returns a cached access token that is valid for longer than the
// expiry buffer, refreshing it first when needed.
//
// A failed refresh clears the token it was meant to replace and returns the
// fetch error unchanged. Cancelling ctx stops the wait but not a refresh that
// other callers share.
func (c *Cache) Token(ctx context.Context) (string, error) {
	token, err := c.valid(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func (c *Cache) valid(ctx context.Context) (*oauth2.Token, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if c.fresh(token) {
		return token, nil
	}
	return c.refresh(ctx, false)
}

// Refresh fetches a new token regardless of the cached one. A call that
// arrives while another refresh is in flight joins it.
func (c *Cache) Refresh(ctx context.Context) (string, error) {
	token, err := c.refresh(ctx, true)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Invalidate drops the cached token so the next Token call refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// Expiry returns the expiry of the cached token, or the zero time when empty.
func (c *Cache) Expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil {
		return time.Time{}
	}
	return c.token.Expiry
}

// State reports the current state of the cache.
func (c *Cache) State() State {
	if c.refreshing.Load() > 0 {
		return StateRefreshing
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	switch {
	case token == nil:
		return StateEmpty
	case c.fresh(token):
		return StateValid
	default:
		return StateStale
	}
}

// TokenSource adapts the cache to oauth2.TokenSource. Token requests made
// through it use ctx.
func (c *Cache) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &cacheTokenSource{ctx: ctx, cache: c}
}

func (c *Cache) fresh(token *oauth2.Token) bool {
	return token != nil && token.Expiry.After(c.now().Add(c.buffer))
}

func (c *Cache) refresh(ctx context.Context, force bool) (*oauth2.Token, error) {
	// The flight outlives any single caller, so it must not inherit cancellation.
	flightCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		c.refreshing.Add(1)
		defer c.refreshing.Add(-1)

		c.mu.RLock()
		previous := c.token
		c.mu.RUnlock()

		// A flight that finished between our read and this one may already have refreshed.
		if !force && c.fresh(previous) {
			return previous, nil
		}

		token, err := c.fetch(flightCtx)
		if err == nil && token == nil {
			err = errors.New("token source returned no token")
		}

		c.mu.Lock()
		if err != nil {
			if c.token == previous {
				c.token = nil
			}
		} else {
			c.token = token
		}
		c.mu.Unlock()

		if err != nil {
			return nil, err
		}

		slog.DebugContext(flightCtx, "access token refreshed",
			"expires_at", token.Expiry.Format(time.RFC3339),
			"expires_in", token.ExpiresIn,
		)
		return token, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	}
}

// cacheTokenSource binds a context to a Cache for oauth2.TokenSource callers.
type cacheTokenSource struct {
	ctx   context.Context
	cache *Cache
}

// Compile-time check that cacheTokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*cacheTokenSource)(nil)

// Token returns a copy of the cached token so callers cannot mutate the cache.
func (s *cacheTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.cache.valid(s.ctx)
	if err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.Type(),
		Expiry:      token.Expiry,
	}, nil
}
