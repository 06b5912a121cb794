package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Event is the webhook payload sent for enrollment activity.
type Event struct {
	Action  string    `json:"action"`
	Actor   string    `json:"actor"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Client posts enrollment events to an external webhook, typically a CRM
// or staff chat integration.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, or no URL configured, every call
// succeeds without any I/O.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip || baseURL == "",
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send posts one event to the webhook.
func (c *Client) Send(ctx context.Context, evt Event) error {
	if c.Skip {
		return nil
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}
