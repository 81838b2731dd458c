package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/restaurant-admin/internal/apiclient"
	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/config"
	"github.com/noah-isme/restaurant-admin/internal/mockapi"
	"github.com/noah-isme/restaurant-admin/internal/obs"
	"github.com/noah-isme/restaurant-admin/internal/order"
	"github.com/noah-isme/restaurant-admin/internal/resilience"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	issuer, err := auth.NewIssuer(auth.IssuerConfig{Secret: "cli-secret", TTL: time.Hour})
	require.NoError(t, err)
	srv := httptest.NewServer(mockapi.NewRouter(mockapi.Options{Issuer: issuer, Logger: zerolog.Nop()}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func testConfig(baseURL, clientID string) *config.Config {
	return &config.Config{
		APIBaseURL:       baseURL,
		APIMaxAttempts:   1,
		AuthTokenURL:     baseURL + "/api/dev/token",
		AuthClientID:     clientID,
		AuthTokenSkew:    time.Second,
		MetricsNamespace: "cli_test",
	}
}

func wireTest(t *testing.T, cfg *config.Config) (*app, *bytes.Buffer, *obs.APIMetrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := obs.NewAPIMetrics("cli_test", reg)
	out := &bytes.Buffer{}
	a, cleanup, err := wire(cfg, zerolog.Nop(), metrics, resilience.NewMetrics(reg), out)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return a, out, metrics
}

func newTestApp(t *testing.T) (*app, *bytes.Buffer, *obs.APIMetrics) {
	t.Helper()
	return wireTest(t, testConfig(newTestServer(t), "owner-cli"))
}

func TestCreateThenUpdate(t *testing.T) {
	a, out, metrics := newTestApp(t)
	ctx := context.Background()

	require.Equal(t, 1, a.dispatch(ctx, "get", nil), "nothing to show before create")

	code := a.dispatch(ctx, "create", []string{
		"-name", "Casa", "-city", "Porto", "-state", "Norte", "-country", "Portugal",
		"-deliveryPrice", "300", "-estimatedDeliveryTime", "25",
		"-cuisine", "Portuguese", "-menu-item", "Francesinha=1450",
	})
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "Restaurant created!")
	require.Contains(t, out.String(), "City: Porto")
	require.Contains(t, out.String(), `"name": "Casa"`)

	out.Reset()
	require.Equal(t, 0, a.dispatch(ctx, "update", []string{"-city", "Braga"}))
	require.Contains(t, out.String(), "Restaurant Updated")
	require.Contains(t, out.String(), `"city": "Braga"`)
	require.Contains(t, out.String(), `"name": "Casa"`, "unset flags keep current values")

	require.Equal(t, 2, int(testutil.ToFloat64(metrics.Notifications.WithLabelValues("success"))))
}

func TestSharedRedisCacheIsPerAccount(t *testing.T) {
	mr := miniredis.RunT(t)
	baseURL := newTestServer(t)
	accountFor := func(clientID string) (*app, *bytes.Buffer) {
		cfg := testConfig(baseURL, clientID)
		cfg.RedisURL = "redis://" + mr.Addr()
		cfg.QueryStaleTime = time.Hour
		cfg.QueryCacheTTL = time.Hour
		a, out, _ := wireTest(t, cfg)
		return a, out
	}
	ctx := context.Background()

	alice, aliceOut := accountFor("alice")
	require.Equal(t, 0, alice.dispatch(ctx, "create", []string{
		"-name", "Alice's", "-city", "Porto", "-state", "Norte", "-country", "Portugal",
		"-deliveryPrice", "300", "-estimatedDeliveryTime", "25",
	}))
	aliceOut.Reset()
	require.Equal(t, 0, alice.dispatch(ctx, "get", nil))
	require.Contains(t, aliceOut.String(), `"name": "Alice's"`)

	bob, bobOut := accountFor("bob")
	require.Equal(t, 1, bob.dispatch(ctx, "get", nil), "bob has no restaurant yet")
	require.NotContains(t, bobOut.String(), "Alice's")
}

func TestCreateRejectsMissingFields(t *testing.T) {
	a, out, _ := newTestApp(t)
	code := a.dispatch(context.Background(), "create", []string{"-name", "Half"})
	require.Equal(t, 2, code)
	require.Empty(t, out.String(), "nothing is sent or notified")
}

func TestFailedCreateExitsNonZero(t *testing.T) {
	a, out, _ := newTestApp(t)
	args := []string{
		"-name", "Casa", "-city", "Porto", "-state", "Norte", "-country", "Portugal",
		"-deliveryPrice", "300", "-estimatedDeliveryTime", "25",
	}
	require.Equal(t, 0, a.dispatch(context.Background(), "create", args))
	out.Reset()
	require.Equal(t, 1, a.dispatch(context.Background(), "create", args))
	require.Contains(t, out.String(), "Unable to update restaurant")
}

func TestOrdersAndStatus(t *testing.T) {
	a, out, _ := newTestApp(t)
	ctx := context.Background()
	require.Equal(t, 0, a.dispatch(ctx, "create", []string{
		"-name", "Casa", "-city", "Porto", "-state", "Norte", "-country", "Portugal",
		"-deliveryPrice", "300", "-estimatedDeliveryTime", "25",
	}))

	// Place an order through the dev endpoint, as a customer checkout would.
	tok, err := auth.Acquire(ctx, a.tokens)
	require.NoError(t, err)
	resp, err := a.restaurants.Client.Do(ctx, devOrderRequest(tok))
	require.NoError(t, err)
	var placed order.Order
	require.NoError(t, resp.DecodeJSON(&placed))

	out.Reset()
	require.Equal(t, 0, a.dispatch(ctx, "orders", nil))
	require.Contains(t, out.String(), placed.ID)
	require.Contains(t, out.String(), "placed")

	out.Reset()
	require.Equal(t, 0, a.dispatch(ctx, "set-status", []string{"-order", placed.ID, "-status", "paid"}))
	require.Contains(t, out.String(), "Order updated")

	var updated order.Order
	body := out.String()
	require.NoError(t, json.NewDecoder(strings.NewReader(body[strings.Index(body, "{"):])).Decode(&updated))
	require.Equal(t, order.StatusPaid, updated.Status)

	require.Equal(t, 2, a.dispatch(ctx, "set-status", []string{"-order", placed.ID, "-status", "shipped"}))
	require.Equal(t, 1, a.dispatch(ctx, "set-status", []string{"-order", placed.ID, "-status", "placed"}))
}

func TestUnknownCommand(t *testing.T) {
	a, _, _ := newTestApp(t)
	require.Equal(t, 2, a.dispatch(context.Background(), "delete", nil))
}

func devOrderRequest(token string) apiclient.Request {
	return apiclient.Request{
		Operation:   "seed_order",
		Method:      http.MethodPost,
		Path:        "/api/dev/orders",
		Token:       token,
		ContentType: apiclient.ContentTypeJSON,
		Body:        strings.NewReader(`{"deliveryDetails":{"name":"Rui","city":"Porto"},"totalAmount":1750}`),
	}
}
