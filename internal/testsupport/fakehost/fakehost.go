// Package fakehost serves an in-memory stand-in for the host REST API, for
// tests of the remote helpers.
package fakehost

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/xyrun/internal/xyapi"
)

// APIKey is the key every request must carry unless overridden.
const APIKey = "test-api-key"

// Bucket is the fake's view of one bucket.
type Bucket struct {
	Data  map[string]any
	Files map[string][]byte
}

// SentEmail records one send_email call.
type SentEmail struct {
	Body        map[string]any
	Attachments map[string][]byte
}

// Host is a running fake.
type Host struct {
	Server *httptest.Server
	APIKey string

	mu       sync.Mutex
	buckets  map[string]*Bucket
	tags     []xyapi.Tag
	emails   []SentEmail
	requests []string
}

// New starts a fake host that is closed with the test.
func New(t testing.TB) *Host {
	t.Helper()
	h := &Host{
		APIKey:  APIKey,
		buckets: map[string]*Bucket{},
	}

	r := chi.NewRouter()
	r.Use(h.record, h.requireKey)
	r.Get("/api/app/get_bucket/v1", h.getBucket)
	r.Post("/api/app/upload_bucket_files/v1", h.uploadBucketFiles)
	r.Post("/api/app/delete_bucket_file/v1", h.deleteBucketFile)
	r.Post("/api/app/write_bucket_data/v1", h.writeBucketData)
	r.Get("/api/app/get_tags/v1", h.getTags)
	r.Post("/api/app/send_email/v1", h.sendEmail)
	r.Get("/files/buckets/{id}/{filename}", h.downloadFile)

	h.Server = httptest.NewServer(r)
	t.Cleanup(h.Server.Close)
	return h
}

// URL is the base_url to hand to a job.
func (h *Host) URL() string {
	return h.Server.URL
}

// AddBucket seeds a bucket.
func (h *Host) AddBucket(id string, data map[string]any, files map[string][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if data == nil {
		data = map[string]any{}
	}
	if files == nil {
		files = map[string][]byte{}
	}
	h.buckets[id] = &Bucket{Data: data, Files: files}
}

// Bucket returns a bucket's current state.
func (h *Host) Bucket(id string) (*Bucket, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[id]
	return b, ok
}

// SetTags replaces the tag catalog.
func (h *Host) SetTags(tags ...xyapi.Tag) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tags = tags
}

// Emails returns every email received so far.
func (h *Host) Emails() []SentEmail {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]SentEmail(nil), h.emails...)
}

// Requests returns "METHOD /path" for every request received so far.
func (h *Host) Requests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.requests...)
}

func (h *Host) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.requests = append(h.requests, r.Method+" "+r.URL.Path)
		h.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (h *Host) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != h.APIKey {
			writeJSON(w, http.StatusForbidden, map[string]any{"code": "api", "description": "Invalid API Key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Host) getBucket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[id]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"code": "bucket", "description": "Bucket not found: " + id})
		return
	}

	names := make([]string, 0, len(b.Files))
	for name := range b.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	files := make([]xyapi.BucketFile, 0, len(names))
	for _, name := range names {
		files = append(files, xyapi.BucketFile{
			Filename: name,
			Path:     fmt.Sprintf("files/buckets/%s/%s", id, name),
			Size:     int64(len(b.Files[name])),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":   0,
		"bucket": map[string]any{"id": id},
		"data":   b.Data,
		"files":  files,
	})
}

func (h *Host) downloadFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "filename")

	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	content, ok := b.Files[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(content)
}

func (h *Host) uploadBucketFiles(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "form", "description": err.Error()})
		return
	}
	id := r.FormValue("id")
	uploaded, err := readFiles(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "form", "description": err.Error()})
		return
	}

	h.mu.Lock()
	b, ok := h.buckets[id]
	if !ok {
		h.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"code": "bucket", "description": "Bucket not found: " + id})
		return
	}
	for name, content := range uploaded {
		b.Files[name] = content
	}
	files := make([]xyapi.BucketFile, 0, len(b.Files))
	for name, content := range b.Files {
		files = append(files, xyapi.BucketFile{Filename: name, Size: int64(len(content))})
	}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"code": 0, "files": files})
}

func (h *Host) deleteBucketFile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "json", "description": err.Error()})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[body.ID]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"code": "bucket", "description": "Bucket not found: " + body.ID})
		return
	}
	if _, ok := b.Files[body.Filename]; !ok {
		writeJSON(w, http.StatusOK, map[string]any{"code": "file", "description": "File not found: " + body.Filename})
		return
	}
	delete(b.Files, body.Filename)
	writeJSON(w, http.StatusOK, map[string]any{"code": 0})
}

func (h *Host) writeBucketData(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID   string         `json:"id"`
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "json", "description": err.Error()})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[body.ID]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"code": "bucket", "description": "Bucket not found: " + body.ID})
		return
	}
	b.Data = body.Data
	writeJSON(w, http.StatusOK, map[string]any{"code": 0})
}

func (h *Host) getTags(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows := h.tags
	if rows == nil {
		rows = []xyapi.Tag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": 0, "rows": rows})
}

func (h *Host) sendEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "form", "description": err.Error()})
		return
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.FormValue("json")), &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "json", "description": err.Error()})
		return
	}
	attachments, err := readFiles(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "form", "description": err.Error()})
		return
	}

	h.mu.Lock()
	h.emails = append(h.emails, SentEmail{Body: body, Attachments: attachments})
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"code": 0})
}

func readFiles(r *http.Request) (map[string][]byte, error) {
	out := map[string][]byte{}
	if r.MultipartForm == nil {
		return out, nil
	}
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			content, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, err
			}
			out[fh.Filename] = content
		}
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
