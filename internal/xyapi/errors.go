package xyapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSecrets means the job has no secrets, so no API key can exist.
	ErrNoSecrets = errors.New("no secrets assigned")
	// ErrMissingSecret means a named secret is absent.
	ErrMissingSecret = errors.New("secret not found")
	// ErrFileNotFound means a bucket has no file with the requested name.
	ErrFileNotFound = errors.New("bucket file not found")
)

// APIError is a failed host API call: a non-2xx status or an error code in
// the response body.
type APIError struct {
	Op          string
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Code != "" {
		fmt.Fprintf(&b, "api error %s", e.Code)
	} else {
		fmt.Fprintf(&b, "http %d", e.Status)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	return b.String()
}

func newHTTPError(op string, status int, body []byte) *APIError {
	apiErr := &APIError{Op: op, Status: status}

	var parsed struct {
		Code        any    `json:"code"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Description != "" {
		apiErr.Description = parsed.Description
		return apiErr
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	apiErr.Description = text
	return apiErr
}
