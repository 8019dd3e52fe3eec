package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeJob reads exactly one line from r and decodes it as a JobContext.
// Numbers are kept as json.Number so large integer ids survive untouched.
// A missing trailing newline is accepted.
func DecodeJob(r io.Reader) (*JobContext, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("no job JSON on stdin")
	}

	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.UseNumber()

	var job JobContext
	if err := decoder.Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("unexpected data after job JSON")
	}

	if job.Params == nil {
		job.Params = map[string]any{}
	}
	return &job, nil
}

// EncodeJob writes job as a single JSON line. The host never needs this; it
// exists for tests and for `xyrun doctor` round trips.
func EncodeJob(w io.Writer, job *JobContext) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(job); err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return nil
}
