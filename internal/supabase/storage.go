package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Storage returns a storage client.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// StorageClient handles Supabase Storage operations.
type StorageClient struct {
	client *Client
}

// From returns a bucket client.
func (s *StorageClient) From(bucket string) *BucketClient {
	return &BucketClient{client: s.client, bucket: bucket}
}

// BucketClient handles object operations within one bucket.
type BucketClient struct {
	client *Client
	bucket string
}

// UploadResult is the storage API reply to an upload.
type UploadResult struct {
	Key string `json:"Key"`
	ID  string `json:"Id,omitempty"`
}

// Upload stores data at path. With upsert an existing object is replaced.
func (b *BucketClient) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (*UploadResult, error) {
	req, err := b.client.newRequest(ctx, http.MethodPost, b.objectURL(path), data)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	if upsert {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := b.client.do(req)
	if err != nil {
		return nil, err
	}
	var result UploadResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Download fetches an object.
func (b *BucketClient) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := b.client.newRequest(ctx, http.MethodGet, b.objectURL(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.do(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Remove deletes objects by path.
func (b *BucketClient) Remove(ctx context.Context, paths []string) error {
	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal paths: %w", err)
	}
	req, err := b.client.newRequest(ctx, http.MethodDelete,
		fmt.Sprintf("%s/storage/v1/object/%s", b.client.baseURL, b.bucket), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.do(req)
	if err != nil {
		return err
	}
	return resp.Err()
}

// PublicURL returns the public URL for an object in a public bucket.
func (b *BucketClient) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.bucket, escapePath(path))
}

func (b *BucketClient) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.bucket, escapePath(path))
}

func escapePath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
