package prochttp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client drives a Stripe-style charges API: form-encoded POSTs with an
// Idempotency-Key header deduplicated by the processor.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.processor.example.com"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Capture(ctx context.Context, chargeRef, idempotencyKey string) error {
	return c.post(ctx, fmt.Sprintf("/v1/charges/%s/capture", chargeRef), idempotencyKey)
}

func (c *Client) Cancel(ctx context.Context, chargeRef, idempotencyKey string) error {
	return c.post(ctx, fmt.Sprintf("/v1/charges/%s/cancel", chargeRef), idempotencyKey)
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(""))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("processor http %d", resp.StatusCode)
	}
	return nil
}
