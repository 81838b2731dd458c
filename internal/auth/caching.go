package auth

import (
	"context"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/noah-isme/restaurant-admin/internal/flight"
)

// fallbackTTL bounds reuse of tokens that are not JWTs or carry no exp.
const fallbackTTL = time.Minute

// Caching reuses a token from Source until shortly before it expires.
// Concurrent callers that find the cache empty share one Source call.
type Caching struct {
	Source TokenProvider
	// Skew is subtracted from the token's exp so a token is never sent
	// moments before it lapses.
	Skew   time.Duration
	Now    func() time.Time
	Logger zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	group     flight.Group
}

// NewCaching wraps source.
func NewCaching(source TokenProvider, skew time.Duration, logger zerolog.Logger) *Caching {
	return &Caching{Source: source, Skew: skew, Logger: logger}
}

// Token implements TokenProvider.
func (c *Caching) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}
	v, err := c.group.Do(ctx, "token", func(ctx context.Context) (any, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		token, err := Acquire(ctx, c.Source)
		if err != nil {
			return "", err
		}
		expiresAt := c.expiry(token)
		c.mu.Lock()
		c.token, c.expiresAt = token, expiresAt
		c.mu.Unlock()
		c.Logger.Debug().Time("expires_at", expiresAt).Msg("token_refreshed")
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call refreshes it.
func (c *Caching) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

func (c *Caching) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// expiry reads exp without verifying the signature; the backend verifies.
func (c *Caching) expiry(token string) time.Time {
	now := c.now()
	parsed, err := jwt.ParseInsecure([]byte(token))
	if err != nil || parsed.Expiration().IsZero() {
		return now.Add(fallbackTTL)
	}
	return parsed.Expiration().Add(-c.Skew)
}

func (c *Caching) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
