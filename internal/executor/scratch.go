package executor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// scratchPrefix marks files owned by a scratch set.
const scratchPrefix = ".xyrun-"

// Scratch tracks temporary files created in one directory and removes them
// together.
type Scratch struct {
	dir string

	mu    sync.Mutex
	paths []string
}

// NewScratch returns a scratch set rooted at dir, which must exist.
func NewScratch(dir string) (*Scratch, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		trimmed = "."
	}
	info, err := os.Stat(trimmed)
	if err != nil {
		return nil, fmt.Errorf("scratch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scratch directory %q is not a directory", trimmed)
	}
	return &Scratch{dir: filepath.Clean(trimmed)}, nil
}

// Dir returns the directory scratch files are created in.
func (s *Scratch) Dir() string {
	return s.dir
}

// Create makes a new empty file with a unique name ending in suffix.
func (s *Scratch) Create(suffix string) (*os.File, error) {
	if strings.ContainsAny(suffix, `/\`) {
		return nil, fmt.Errorf("scratch suffix %q must not contain path separators", suffix)
	}
	path := filepath.Join(s.dir, scratchPrefix+uuid.NewString()+suffix)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}

	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	return f, nil
}

// WriteFile creates a scratch file holding content and returns its path.
func (s *Scratch) WriteFile(suffix string, content []byte, perm os.FileMode) (string, error) {
	f, err := s.Create(suffix)
	if err != nil {
		return "", err
	}
	_, werr := f.Write(content)
	cerr := f.Close()
	if werr != nil {
		return "", fmt.Errorf("write scratch file: %w", werr)
	}
	if cerr != nil {
		return "", fmt.Errorf("close scratch file: %w", cerr)
	}
	if err := os.Chmod(f.Name(), perm); err != nil {
		return "", fmt.Errorf("chmod scratch file: %w", err)
	}
	return f.Name(), nil
}

// Paths returns the files created so far.
func (s *Scratch) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Cleanup removes every scratch file. Files already gone are not an error.
// It is safe to call more than once.
func (s *Scratch) Cleanup() error {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove scratch file %q: %w", filepath.Base(path), err))
		}
	}
	return errors.Join(errs...)
}
