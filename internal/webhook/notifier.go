// Package webhook delivers commit results to caller-supplied callback URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jfaulkner/crm-bridge/internal/uow"
)

// ValidateCallbackURL checks that raw is a well-formed absolute http(s) URL.
// It runs during request validation so a bad URL fails the request before any
// commit is attempted.
func ValidateCallbackURL(raw string) error {
	if raw == "" {
		return &uow.ValidationError{Field: "callbackUrl", Reason: "must not be empty"}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return &uow.ValidationError{Field: "callbackUrl", Reason: "must be a valid URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &uow.ValidationError{Field: "callbackUrl", Reason: "must use http or https"}
	}
	if parsed.Host == "" {
		return &uow.ValidationError{Field: "callbackUrl", Reason: "must be absolute"}
	}
	return nil
}

// Notifier POSTs callback envelopes. Delivery is single-attempt: failures are
// reported as DeliveryError for the caller to log, never retried.
type Notifier struct {
	httpClient *http.Client
}

// New creates a Notifier with the given delivery timeout.
func New(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Notify serializes the envelope and POSTs it to callbackURL.
func (n *Notifier) Notify(ctx context.Context, callbackURL string, envelope uow.CallbackEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return &uow.DeliveryError{URL: callbackURL, Err: fmt.Errorf("marshal envelope: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return &uow.DeliveryError{URL: callbackURL, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return &uow.DeliveryError{URL: callbackURL, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &uow.DeliveryError{
			URL: callbackURL,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return nil
}
