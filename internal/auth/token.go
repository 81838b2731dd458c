package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTokenUnavailable wraps every failure to obtain a bearer token.
var ErrTokenUnavailable = errors.New("auth: token unavailable")

// TokenProvider supplies a bearer token for the signed-in user. Token may
// block while the identity provider is consulted.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Static always returns the same token.
type Static string

// Token implements TokenProvider.
func (s Static) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", fmt.Errorf("%w: no token configured", ErrTokenUnavailable)
	}
	return token, nil
}

// Acquire calls p and normalises the error so callers can match
// ErrTokenUnavailable regardless of the provider.
func Acquire(ctx context.Context, p TokenProvider) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: no provider", ErrTokenUnavailable)
	}
	token, err := p.Token(ctx)
	if err != nil {
		if errors.Is(err, ErrTokenUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenUnavailable)
	}
	return token, nil
}
