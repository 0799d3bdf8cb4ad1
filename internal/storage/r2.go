package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Uploader is the object-storage collaborator: it stores bytes under a key
// and hands back the public URL. Everything else about the store is opaque.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType, cacheControl string) (string, error)
}

// R2Client uploads objects to an R2-style bucket over its HTTP API.
type R2Client struct {
	client        *http.Client
	endpoint      string
	bucket        string
	token         string
	publicBaseURL string
}

// NewR2Client wires an upload client. publicBaseURL is the CDN base the
// bucket is served from, distinct from the write endpoint.
func NewR2Client(client *http.Client, endpoint, bucket, token, publicBaseURL string) *R2Client {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &R2Client{
		client:        client,
		endpoint:      strings.TrimRight(endpoint, "/"),
		bucket:        bucket,
		token:         token,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Put uploads the object and returns its public URL.
func (c *R2Client) Put(ctx context.Context, key string, body []byte, contentType, cacheControl string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key must not be empty")
	}

	target := fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if cacheControl != "" {
		req.Header.Set("Cache-Control", cacheControl)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.ContentLength = int64(len(body))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload object %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload object %s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return c.publicBaseURL + "/" + key, nil
}

var _ Uploader = (*R2Client)(nil)
