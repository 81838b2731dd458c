package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Webhook posts notifications as signed JSON to an external endpoint, e.g. a
// team chat hook, so staff see the same messages as the owner.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
	Now    func() time.Time
}

// Notify implements Notifier.
func (wh Webhook) Notify(ctx context.Context, n Notification) error {
	if err := validateURL(wh.URL); err != nil {
		return err
	}
	body, err := json.Marshal(struct {
		Notification
		SentAt time.Time `json:"sentAt"`
	}{Notification: n, SentAt: wh.now()})
	if err != nil {
		return err
	}
	ts := wh.now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "restaurant-admin-notify/1.0")
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	if wh.Secret != "" {
		req.Header.Set("X-Signature", ComputeSignature(wh.Secret, ts, body))
	}
	client := wh.Client
	if client == nil {
		client = HTTPClient(5 * time.Second)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (wh Webhook) now() time.Time {
	if wh.Now != nil {
		return wh.Now()
	}
	return time.Now()
}

// ComputeSignature is HMAC-SHA256 over "<ts>.<body>" keyed by secret.
func ComputeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns a traced client for webhook delivery.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
		return nil
	default:
		return errors.New("webhook url must be http or https")
	}
}
