package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ClientCredentials obtains access tokens from an identity provider's token
// endpoint using the client-credentials grant.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Client       *http.Client
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Token implements TokenProvider.
func (c ClientCredentials) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(c.TokenURL) == "" || strings.TrimSpace(c.ClientID) == "" {
		return "", fmt.Errorf("%w: client credentials not configured", ErrTokenUnavailable)
	}
	payload, err := json.Marshal(tokenRequest{
		GrantType:    "client_credentials",
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Audience:     c.Audience,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read token response: %w", ErrTokenUnavailable, err)
	}
	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode token response (status %d): %w", ErrTokenUnavailable, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: identity provider returned %d %s %s", ErrTokenUnavailable, resp.StatusCode, decoded.Error, decoded.Description)
	}
	if decoded.AccessToken == "" {
		return "", fmt.Errorf("%w: identity provider returned no access_token", ErrTokenUnavailable)
	}
	if decoded.TokenType != "" && !strings.EqualFold(decoded.TokenType, "bearer") {
		return "", fmt.Errorf("%w: unsupported token type %q", ErrTokenUnavailable, decoded.TokenType)
	}
	return decoded.AccessToken, nil
}
