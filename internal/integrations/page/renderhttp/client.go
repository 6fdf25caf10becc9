package renderhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BearBump/RegBox/internal/integrations/page"
	"github.com/pkg/errors"
)

// Client fetches pages through the headless rendering service. Some camp
// providers render the signup button client-side, so the raw HTML never
// contains the open-signal keywords.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type renderReq struct {
	URL string `json:"url"`
}

type renderResp struct {
	Status string `json:"status"`
	HTML   string `json:"html"`
}

func (c *Client) Fetch(ctx context.Context, url string) (page.Result, error) {
	body, err := json.Marshal(renderReq{URL: url})
	if err != nil {
		return page.Result{}, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return page.Result{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return page.Result{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return page.Result{}, fmt.Errorf("render service http %d", resp.StatusCode)
	}

	var r renderResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return page.Result{}, errors.Wrap(err, "decode")
	}
	if r.Status != "ok" {
		return page.Result{}, fmt.Errorf("render service status=%s", r.Status)
	}

	return page.Result{Body: r.HTML, FetchedAt: time.Now().UTC()}, nil
}
