package directhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BearBump/RegBox/internal/integrations/page"
	"github.com/pkg/errors"
)

const maxBodyBytes = 2 << 20 // provider pages; enough for any signup page

type Client struct {
	httpc *http.Client
}

func New() *Client {
	return &Client{
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Fetch(ctx context.Context, url string) (page.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return page.Result{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", "RegBox/1.0 (+https://regbox.example.com)")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return page.Result{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return page.Result{}, fmt.Errorf("detection page http %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return page.Result{}, errors.Wrap(err, "read body")
	}

	return page.Result{Body: string(b), FetchedAt: time.Now().UTC()}, nil
}
