package xyapi

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/xyrun/internal/protocol"
)

// Secret returns the named job secret. A job without any secrets yields
// ErrNoSecrets, a missing name ErrMissingSecret.
func Secret(job *protocol.JobContext, name string) (string, error) {
	if !job.HasSecrets() {
		return "", ErrNoSecrets
	}
	name = strings.TrimSpace(name)
	value, ok := job.Secrets[name]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingSecret, name)
	}
	return value, nil
}

// MaskSecrets returns a copy of secrets with every value replaced.
func MaskSecrets(secrets map[string]string) map[string]string {
	if secrets == nil {
		return nil
	}
	out := make(map[string]string, len(secrets))
	for k := range secrets {
		out[k] = "********"
	}
	return out
}
