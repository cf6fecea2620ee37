package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/velmie/cadence"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	maxBodyExcerpt        = 512
)

// Webhook posts each step dispatch as JSON to the automation engine.
type Webhook struct {
	url    string
	token  string
	client *http.Client
	logger cadence.Logger
}

var _ cadence.Dispatcher = (*Webhook)(nil)

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) WebhookOption {
	return func(w *Webhook) {
		w.token = token
	}
}

// WithHTTPClient replaces the HTTP client. It takes precedence over WithTimeout.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *Webhook) {
		if client != nil {
			w.client = client
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) WebhookOption {
	return func(w *Webhook) {
		if timeout > 0 {
			w.client = &http.Client{Timeout: timeout}
		}
	}
}

// WithWebhookLogger sets the logger for delivery responses.
func WithWebhookLogger(logger cadence.Logger) WebhookOption {
	return func(w *Webhook) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWebhook creates a webhook sender for url.
func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrURLRequired
	}
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		logger: cadence.NopLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Dispatch sends d and waits for the response. A non-2xx status is returned as *StatusError.
func (w *Webhook) Dispatch(ctx context.Context, d cadence.StepDispatch) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("dispatch: encode step: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch: post step: %w", err)
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
	_, _ = io.Copy(io.Discard, resp.Body)

	w.logger.Debug("step dispatched",
		"enrollment", d.EnrollmentID,
		"step", d.StepNumber,
		"status", resp.StatusCode,
		"body", string(excerpt),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	return nil
}
