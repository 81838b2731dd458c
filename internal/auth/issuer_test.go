package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/common"
)

func newIssuer(t *testing.T) *auth.Issuer {
	t.Helper()
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:   "dev-secret",
		Issuer:   "restaurant-admin-dev",
		Audience: "restaurant-api",
		TTL:      time.Minute,
	})
	require.NoError(t, err)
	return issuer
}

func TestIssuerRoundTrip(t *testing.T) {
	issuer := newIssuer(t)
	token, expiresAt, err := issuer.Issue("auth0|owner-1")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 2*time.Second)

	subject, err := issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "auth0|owner-1", subject)
}

func TestIssuerRejectsExpired(t *testing.T) {
	issuer := newIssuer(t)
	token, _, err := issuer.Issue("auth0|owner-1")
	require.NoError(t, err)

	issuer.WithNow(func() time.Time { return time.Now().Add(time.Hour) })
	_, err = issuer.Verify(token)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestIssuerRejectsForeignSignature(t *testing.T) {
	issuer := newIssuer(t)
	tok, err := jwt.NewBuilder().Subject("x").Issuer("restaurant-admin-dev").Audience([]string{"restaurant-api"}).Expiration(time.Now().Add(time.Minute)).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("other-secret")))
	require.NoError(t, err)

	_, err = issuer.Verify(string(signed))
	require.Error(t, err)
}

func TestIssuerRejectsBadClaims(t *testing.T) {
	issuer := newIssuer(t)
	now := time.Now()
	secret := []byte("dev-secret")
	base := func() *jwt.Builder {
		return jwt.NewBuilder().
			Subject("owner-1").
			Issuer("restaurant-admin-dev").
			Audience([]string{"restaurant-api"}).
			IssuedAt(now).
			Expiration(now.Add(time.Minute))
	}

	cases := map[string]struct {
		build func() *jwt.Builder
		alg   jwa.SignatureAlgorithm
	}{
		"other issuer":   {func() *jwt.Builder { return base().Issuer("someone-else") }, jwa.HS256},
		"other audience": {func() *jwt.Builder { return base().Audience([]string{"payments"}) }, jwa.HS256},
		"not yet valid":  {func() *jwt.Builder { return base().NotBefore(now.Add(5 * time.Minute)) }, jwa.HS256},
		"no subject":     {func() *jwt.Builder { return base().Subject("") }, jwa.HS256},
		"other hmac":     {base, jwa.HS512},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tok, err := tc.build().Build()
			require.NoError(t, err)
			signed, err := jwt.Sign(tok, jwt.WithKey(tc.alg, secret))
			require.NoError(t, err)
			_, err = issuer.Verify(string(signed))
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
		})
	}
}

func TestIssuerRequiresSecret(t *testing.T) {
	_, err := auth.NewIssuer(auth.IssuerConfig{})
	require.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	issuer := newIssuer(t)
	token, _, err := issuer.Issue("auth0|owner-1")
	require.NoError(t, err)

	var seen string
	handler := auth.Middleware{Verifier: issuer}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/my/restaurant", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/my/restaurant", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "auth0|owner-1", seen)
}
