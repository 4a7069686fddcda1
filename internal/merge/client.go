// Package merge is an HTTP client for the photo merge/frame collaborator: a
// sidecar service that composites the host and guest photos and renders the
// framed result.
package merge

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

type mergeRequest struct {
	HostPhotoUrl  string `json:"host_photo_url"`
	GuestPhotoUrl string `json:"guest_photo_url"`
}

type mergeResponse struct {
	MergedUrl string `json:"merged_url"`
}

// Merge composites the two role photos into one image and returns its URL.
func (c *Client) Merge(ctx context.Context, hostPhotoUrl, guestPhotoUrl string) (string, error) {
	var resp mergeResponse
	if err := c.post(ctx, "/merge", mergeRequest{
		HostPhotoUrl:  hostPhotoUrl,
		GuestPhotoUrl: guestPhotoUrl,
	}, &resp); err != nil {
		return "", fmt.Errorf("merge: %w", err)
	}

	return resp.MergedUrl, nil
}

type frameRequest struct {
	MergedUrl     string `json:"merged_url"`
	FrameLayoutId string `json:"frame_layout_id"`
}

type frameResponse struct {
	FrameResultUrl string `json:"frame_result_url"`
}

// FinalizeFrame renders the merged image into the selected frame layout.
func (c *Client) FinalizeFrame(ctx context.Context, mergedUrl, frameLayoutId string) (string, error) {
	var resp frameResponse
	if err := c.post(ctx, "/frame", frameRequest{
		MergedUrl:     mergedUrl,
		FrameLayoutId: frameLayoutId,
	}, &resp); err != nil {
		return "", fmt.Errorf("finalize frame: %w", err)
	}

	return resp.FrameResultUrl, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
