package xyapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Bucket is the get_bucket response: metadata, JSON data and file list.
type Bucket struct {
	Bucket map[string]any `json:"bucket"`
	Data   map[string]any `json:"data"`
	Files  []BucketFile   `json:"files"`
}

// BucketFile is one file stored in a bucket. Path is relative to base_url.
type BucketFile struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Date     int64  `json:"date,omitempty"`
}

// GetBucket fetches bucket metadata, data and file list.
func (c *Client) GetBucket(ctx context.Context, id string) (*Bucket, error) {
	if id == "" {
		return nil, fmt.Errorf("get bucket: empty bucket id")
	}
	var out Bucket
	if err := c.getJSON(ctx, "get bucket", c.paths.GetBucket, url.Values{"id": {id}}, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = map[string]any{}
	}
	return &out, nil
}

// GetBucketData returns the bucket's JSON data, never nil.
func (c *Client) GetBucketData(ctx context.Context, id string) (map[string]any, error) {
	b, err := c.GetBucket(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}

// PutBucketData replaces the bucket's JSON data.
func (c *Client) PutBucketData(ctx context.Context, id string, data map[string]any) error {
	if id == "" {
		return fmt.Errorf("write bucket data: empty bucket id")
	}
	if data == nil {
		data = map[string]any{}
	}
	body := map[string]any{"id": id, "data": data}
	return c.postJSON(ctx, "write bucket data", c.paths.WriteBucketData, body, nil)
}

// DownloadBucketFile saves the named bucket file to dest and returns the
// number of bytes written. It costs two requests: metadata, then content.
func (c *Client) DownloadBucketFile(ctx context.Context, id, filename, dest string) (int64, error) {
	const op = "download bucket file"

	b, err := c.GetBucket(ctx, id)
	if err != nil {
		return 0, err
	}

	var file *BucketFile
	for i := range b.Files {
		if b.Files[i].Filename == filename {
			file = &b.Files[i]
			break
		}
	}
	if file == nil {
		return 0, fmt.Errorf("%s: %w: %s", op, ErrFileNotFound, filename)
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(file.Path, nil), nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Del("Accept")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, newHTTPError(op, resp.StatusCode, body)
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("%s: create directory: %w", op, err)
		}
	}
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(dest)
		return 0, fmt.Errorf("%s: write %s: %w", op, dest, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("%s: close %s: %w", op, dest, closeErr)
	}

	c.logger.Info("downloaded bucket file", "bucket", id, "file", filename, "size", humanize.Bytes(uint64(n)))
	return n, nil
}

// UploadBucketFile uploads a local file into the bucket and returns the
// bucket's file list as reported by the host.
func (c *Client) UploadBucketFile(ctx context.Context, id, path string) ([]BucketFile, error) {
	const op = "upload bucket file"
	if id == "" {
		return nil, fmt.Errorf("%s: empty bucket id", op)
	}

	body, contentType, size, err := multipartBody(map[string]string{"id": id}, []string{path})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(c.paths.UploadBucketFile, nil), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)

	var out struct {
		Files []BucketFile `json:"files"`
	}
	if err := c.do(op, req, &out); err != nil {
		return nil, err
	}
	c.logger.Info("uploaded bucket file", "bucket", id, "file", filepath.Base(path), "size", humanize.Bytes(uint64(size)))
	return out.Files, nil
}

// DeleteBucketFile removes one file from the bucket.
func (c *Client) DeleteBucketFile(ctx context.Context, id, filename string) error {
	if id == "" || strings.TrimSpace(filename) == "" {
		return fmt.Errorf("delete bucket file: bucket id and filename are required")
	}
	body := map[string]any{"id": id, "filename": filename}
	return c.postJSON(ctx, "delete bucket file", c.paths.DeleteBucketFile, body, nil)
}

// multipartBody builds a multipart form with the given fields and files
// attached as file1..fileN. It returns the body, its content type and the
// total size of the attached files.
func multipartBody(fields map[string]string, paths []string) (*bytes.Buffer, string, int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", 0, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	var total int64
	for i, path := range paths {
		n, err := attachFile(mw, fmt.Sprintf("file%d", i+1), path)
		if err != nil {
			return nil, "", 0, err
		}
		total += n
	}

	if err := mw.Close(); err != nil {
		return nil, "", 0, fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), total, nil
}

func attachFile(mw *multipart.Writer, field, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return 0, fmt.Errorf("attach %s: %w", path, err)
	}
	n, err := io.Copy(part, f)
	if err != nil {
		return 0, fmt.Errorf("attach %s: %w", path, err)
	}
	return n, nil
}
