package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/restaurant-admin/internal/notify"
	"github.com/noah-isme/restaurant-admin/internal/obs"
)

type failing struct{}

func (failing) Notify(context.Context, notify.Notification) error { return errors.New("sink down") }

func TestRecorderAndMulti(t *testing.T) {
	rec := &notify.Recorder{}
	var buf bytes.Buffer
	sink := notify.Multi{rec, notify.Writer{Out: &buf}, nil}

	require.NoError(t, sink.Notify(context.Background(), notify.Success("Restaurant Updated")))
	require.NoError(t, sink.Notify(context.Background(), notify.Error("Unable to update restaurant")))

	require.Equal(t, []notify.Notification{
		{Kind: notify.KindSuccess, Message: "Restaurant Updated"},
		{Kind: notify.KindError, Message: "Unable to update restaurant"},
	}, rec.All())
	require.Equal(t, 1, rec.Count(notify.KindError))
	require.Equal(t, "[ok] Restaurant Updated\n[error] Unable to update restaurant\n", buf.String())
}

func TestMultiJoinsErrors(t *testing.T) {
	rec := &notify.Recorder{}
	err := notify.Multi{failing{}, rec}.Notify(context.Background(), notify.Success("Order updated"))
	require.ErrorContains(t, err, "sink down")
	require.Len(t, rec.All(), 1, "later sinks still receive the message")
}

func TestInstrumentedCounts(t *testing.T) {
	metrics := obs.NewAPIMetrics("notify_test", prometheus.NewRegistry())
	rec := &notify.Recorder{}
	sink := notify.Instrumented{Next: rec, Metrics: metrics}
	require.NoError(t, sink.Notify(context.Background(), notify.Error("Unable to update order")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Notifications.WithLabelValues("error")))
	require.Len(t, rec.All(), 1)
}

func TestWebhookSignsPayload(t *testing.T) {
	type received struct {
		header http.Header
		body   []byte
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	fixed := time.Unix(1700000000, 0).UTC()
	wh := notify.Webhook{URL: srv.URL, Secret: "s3cret", Client: srv.Client(), Now: func() time.Time { return fixed }}
	require.NoError(t, wh.Notify(context.Background(), notify.Success("Order updated")))

	r := <-got
	require.Equal(t, strconv.FormatInt(fixed.Unix(), 10), r.header.Get("X-Timestamp"))
	require.Equal(t, notify.ComputeSignature("s3cret", fixed.Unix(), r.body), r.header.Get("X-Signature"))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(r.body, &payload))
	require.Equal(t, "success", payload["kind"])
	require.Equal(t, "Order updated", payload["message"])
}

func TestWebhookRejectsBadURLAndStatus(t *testing.T) {
	err := notify.Webhook{URL: "http://example.com/hook"}.Notify(context.Background(), notify.Success("x"))
	require.ErrorContains(t, err, "localhost")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	err = notify.Webhook{URL: srv.URL, Client: srv.Client()}.Notify(context.Background(), notify.Success("x"))
	require.ErrorContains(t, err, "502")
}
