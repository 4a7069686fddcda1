// Package upload is the client-side HTTP sink for captured photos.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	baseUrl    string
	httpClient *http.Client
}

func NewClient(baseUrl string) *Client {
	return &Client{
		baseUrl: baseUrl,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type uploadRequest struct {
	// Image is the base64-encoded capture payload.
	Image string `json:"image"`
	Role  string `json:"role"`
}

type uploadResponse struct {
	Url string `json:"url"`
}

// Upload stores one captured photo and returns its URL. Cancelling ctx
// aborts an in-flight upload.
func (c *Client) Upload(ctx context.Context, base64Image, role string) (string, error) {
	body, err := json.Marshal(uploadRequest{Image: base64Image, Role: role})
	if err != nil {
		return "", fmt.Errorf("upload: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+"/upload", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("upload: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload: unexpected status %d: %s", resp.StatusCode, data)
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("upload: decode response: %w", err)
	}

	return ur.Url, nil
}
