package apiclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/restaurant-admin/internal/apiclient"
	"github.com/noah-isme/restaurant-admin/internal/obs"
)

type capturedRequest struct {
	method      string
	path        string
	auth        string
	contentType string
	body        string
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		*captured = capturedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			body:        string(data),
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestDoSendsBearerAndBody(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, `{"id":"r1","name":"Testaurant"}`)
	registry := prometheus.NewRegistry()
	metrics := obs.NewAPIMetrics("test", registry)
	client, err := apiclient.New(apiclient.Options{BaseURL: srv.URL + "/", HTTPClient: srv.Client(), Metrics: metrics})
	require.NoError(t, err)

	body, err := apiclient.JSONBody(map[string]string{"status": "paid"})
	require.NoError(t, err)
	resp, err := client.Do(context.Background(), apiclient.Request{
		Operation:   "updateStatus",
		Method:      http.MethodPut,
		Path:        "/api/my/restaurant/order/o1/status",
		Token:       "tok-123",
		ContentType: apiclient.ContentTypeJSON,
		Body:        body,
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, captured.method)
	require.Equal(t, "/api/my/restaurant/order/o1/status", captured.path)
	require.Equal(t, "Bearer tok-123", captured.auth)
	require.Equal(t, "application/json", captured.contentType)
	require.Equal(t, `{"status":"paid"}`, captured.body)

	var decoded map[string]string
	require.NoError(t, resp.DecodeJSON(&decoded))
	require.Equal(t, map[string]string{"id": "r1", "name": "Testaurant"}, decoded)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("updateStatus", "ok")))
}

func TestDoOmitsEmptyHeaders(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, `{}`)
	client, err := apiclient.New(apiclient.Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = client.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/api/my/restaurant"})
	require.NoError(t, err)
	require.Empty(t, captured.auth)
	require.Empty(t, captured.contentType)
}

func TestDoNonSuccessStatus(t *testing.T) {
	srv, _ := newServer(t, http.StatusNotFound, `{"error":{"code":"NOT_FOUND"}}`)
	client, err := apiclient.New(apiclient.Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), apiclient.Request{Operation: "getMyRestaurant", Method: http.MethodGet, Path: "/api/my/restaurant"})
	require.Nil(t, resp)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Contains(t, string(statusErr.Body), "NOT_FOUND")
	require.True(t, apiclient.IsStatus(err, http.StatusNotFound))
}

type failingDoer struct{ err error }

func (f failingDoer) Do(context.Context, *http.Request) (*http.Response, error) { return nil, f.err }

func TestDoTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	client := apiclient.NewWithDoer("http://api.invalid", failingDoer{err: boom}, zerolog.Nop())

	_, err := client.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/api/my/restaurant"})
	var transportErr *apiclient.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, boom)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := apiclient.New(apiclient.Options{})
	require.Error(t, err)
}

func TestDecodeEmptyBody(t *testing.T) {
	resp := &apiclient.Response{StatusCode: http.StatusOK}
	var v map[string]any
	require.ErrorIs(t, resp.DecodeJSON(&v), apiclient.ErrEmptyBody)
}
