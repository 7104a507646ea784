package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RecorderClient drives the external recorder service. Commands are
// asynchronous: the recorder reports outcomes through the status webhook,
// never through these calls.
type RecorderClient interface {
	StartRecording(ctx context.Context, roomId, sessionId string) error
	StopRecording(ctx context.Context, sessionId string) error
}

type HTTPRecorderClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPRecorderClient(baseURL string) *HTTPRecorderClient {
	return &HTTPRecorderClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPRecorderClient) StartRecording(ctx context.Context, roomId, sessionId string) error {
	return c.post(ctx, "/record/start", map[string]string{
		"room_id":    roomId,
		"session_id": sessionId,
	})
}

func (c *HTTPRecorderClient) StopRecording(ctx context.Context, sessionId string) error {
	return c.post(ctx, "/record/stop", map[string]string{
		"session_id": sessionId,
	})
}

func (c *HTTPRecorderClient) post(ctx context.Context, path string, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
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
		return fmt.Errorf("recorder returned %s", resp.Status)
	}

	return nil
}
