package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().Subject("auth0|owner").Expiration(exp).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("k")))
	require.NoError(t, err)
	return string(signed)
}

func TestStaticToken(t *testing.T) {
	token, err := Static("abc").Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", token)

	_, err = Static(" ").Token(context.Background())
	require.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestAcquireWrapsProviderErrors(t *testing.T) {
	boom := errors.New("session expired")
	_, err := Acquire(context.Background(), TokenFunc(func(context.Context) (string, error) { return "", boom }))
	require.ErrorIs(t, err, ErrTokenUnavailable)
	require.ErrorIs(t, err, boom)

	_, err = Acquire(context.Background(), nil)
	require.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestCachingReusesUntilExpiry(t *testing.T) {
	now := time.Now()
	var calls int32
	first := signedToken(t, now.Add(time.Minute))
	second := signedToken(t, now.Add(2*time.Hour))
	source := TokenFunc(func(context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return first, nil
		}
		return second, nil
	})
	clock := now
	c := NewCaching(source, 10*time.Second, zerolog.Nop())
	c.Now = func() time.Time { return clock }

	got, err := c.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, got)

	clock = now.Add(40 * time.Second)
	got, err = c.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, got)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// inside the skew window the token counts as expired
	clock = now.Add(55 * time.Second)
	got, err = c.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, second, got)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))

	c.Invalidate()
	_, err = c.Token(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCachingOpaqueTokenUsesFallbackTTL(t *testing.T) {
	var calls int32
	c := NewCaching(TokenFunc(func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "opaque", nil
	}), 0, zerolog.Nop())
	now := time.Now()
	c.Now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := c.Token(context.Background())
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCachingSharesConcurrentRefresh(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	c := NewCaching(TokenFunc(func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "opaque", nil
	}), 0, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Token(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCachingRefreshSurvivesCanceledCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := NewCaching(TokenFunc(func(ctx context.Context) (string, error) {
		close(started)
		select {
		case <-release:
			return "opaque", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}), 0, zerolog.Nop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Token(firstCtx)
		first <- err
	}()
	<-started
	second := make(chan string, 1)
	go func() {
		token, err := c.Token(context.Background())
		require.NoError(t, err)
		second <- token
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-first, context.Canceled)
	close(release)
	require.Equal(t, "opaque", <-second)
}

func TestIdentity(t *testing.T) {
	ctx := context.Background()
	realm := "https://api.example.com"
	owner := func(sub string) TokenProvider {
		tok, err := jwt.NewBuilder().Subject(sub).Expiration(time.Now().Add(time.Hour)).Build()
		require.NoError(t, err)
		signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(sub)))
		require.NoError(t, err)
		return Static(signed)
	}

	alice, err := Identity(ctx, owner("alice"), realm)
	require.NoError(t, err)
	again, err := Identity(ctx, owner("alice"), realm)
	require.NoError(t, err)
	require.Equal(t, alice, again, "a new token for the same subject keeps the label")

	bob, err := Identity(ctx, owner("bob"), realm)
	require.NoError(t, err)
	require.NotEqual(t, alice, bob)

	elsewhere, err := Identity(ctx, owner("alice"), "https://staging.example.com")
	require.NoError(t, err)
	require.NotEqual(t, alice, elsewhere)

	opaqueA, err := Identity(ctx, Static("token-a"), realm)
	require.NoError(t, err)
	opaqueB, err := Identity(ctx, Static("token-b"), realm)
	require.NoError(t, err)
	require.NotEqual(t, opaqueA, opaqueB)
	require.NotContains(t, opaqueA, "token-a")

	_, err = Identity(ctx, Static(""), realm)
	require.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestCachingDoesNotCacheFailures(t *testing.T) {
	var calls int32
	c := NewCaching(TokenFunc(func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("login required")
	}), 0, zerolog.Nop())

	_, err := c.Token(context.Background())
	require.ErrorIs(t, err, ErrTokenUnavailable)
	_, err = c.Token(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClientCredentials(t *testing.T) {
	var got tokenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued","token_type":"Bearer"}`))
	}))
	defer srv.Close()

	cc := ClientCredentials{TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret", Audience: "restaurant-api", Client: srv.Client()}
	token, err := cc.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "issued", token)
	require.Equal(t, "client_credentials", got.GrantType)
	require.Equal(t, "restaurant-api", got.Audience)
}

func TestClientCredentialsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"access_denied","error_description":"bad secret"}`))
	}))
	defer srv.Close()

	cc := ClientCredentials{TokenURL: srv.URL, ClientID: "id", Client: srv.Client()}
	_, err := cc.Token(context.Background())
	require.ErrorIs(t, err, ErrTokenUnavailable)
	require.Contains(t, err.Error(), "access_denied")
}
