package exechttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	secret  string
	httpc   *http.Client
}

func New(baseURL, secret string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9300"
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type startReq struct {
	PlanID    uint64 `json:"plan_id"`
	SessionID string `json:"session_id"`
}

type resumeReq struct {
	SessionID    string `json:"session_id"`
	CheckpointID uint64 `json:"checkpoint_id"`
}

func (c *Client) Start(ctx context.Context, planID uint64, sessionID string) error {
	return c.post(ctx, "/v1/attempts/start", startReq{PlanID: planID, SessionID: sessionID})
}

func (c *Client) Resume(ctx context.Context, sessionID string, checkpointID uint64) error {
	return c.post(ctx, "/v1/attempts/resume", resumeReq{SessionID: sessionID, CheckpointID: checkpointID})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-RegBox-Executor-Secret", c.secret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("executor http %d", resp.StatusCode)
	}
	return nil
}
