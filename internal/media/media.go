// Package media talks to the media plane (SFU). The control plane never
// carries audio or video; it only pushes control commands at the media
// plane and hands its coordinates to clients.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier is the control surface of the media plane used after moderation
// decisions commit. Calls are best effort; the caller logs failures and
// moves on, the liveness sweep reconciles any drift.
type Notifier interface {
	ForceDisconnect(ctx context.Context, roomId, userId string) error
	TeardownRoom(ctx context.Context, roomId string) error
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) ForceDisconnect(ctx context.Context, roomId, userId string) error {
	return c.post(ctx, fmt.Sprintf("%s/rooms/%s/disconnect", c.baseURL, roomId), map[string]string{
		"user_id": userId,
	})
}

func (c *Client) TeardownRoom(ctx context.Context, roomId string) error {
	return c.post(ctx, fmt.Sprintf("%s/rooms/%s/teardown", c.baseURL, roomId), nil)
}

func (c *Client) post(ctx context.Context, url string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("media plane returned %s", resp.Status)
	}

	return nil
}
