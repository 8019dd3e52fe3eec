// Package output writes the line-delimited stream the host reads from the
// plugin's stdout.
//
// Every value is written as one line and flushed before Emit returns, since
// the host renders progress as lines arrive. Strings pass through verbatim;
// everything else is serialized as compact JSON.
package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/mattjoyce/xyrun/internal/protocol"
)

var (
	// ErrUnsupportedPayload is returned for values that have no JSON form.
	ErrUnsupportedPayload = errors.New("unsupported payload")
	// ErrTerminated is returned for envelopes written after the terminal one.
	ErrTerminated = errors.New("job already terminated")
	// ErrTerminalViaEmit is returned when Emit is handed a line carrying a
	// completion code. Only Terminate writes those.
	ErrTerminalViaEmit = errors.New("completion envelopes cannot be emitted directly")
)

// Writer serializes values onto the host stream.
type Writer struct {
	mu         sync.Mutex
	w          *bufio.Writer
	terminated bool
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Emit writes value as one line. A JSON object with a top-level "code" key
// is refused, whether it arrives structured or as a string.
func (o *Writer) Emit(value any) error {
	line, err := encodeLine(value)
	if err != nil {
		return err
	}
	if isTerminalLine(line) {
		return ErrTerminalViaEmit
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, isString := value.(string); !isString && o.terminated {
		return ErrTerminated
	}
	return o.writeLocked(line)
}

// Terminate writes the terminal envelope. Only the first call succeeds.
func (o *Writer) Terminate(env protocol.Envelope) error {
	if !env.IsTerminal() {
		return fmt.Errorf("envelope has no code: %w", ErrUnsupportedPayload)
	}
	line, err := encodeLine(env)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.terminated {
		return ErrTerminated
	}
	o.terminated = true
	return o.writeLocked(line)
}

// Terminated reports whether a terminal envelope has been written.
func (o *Writer) Terminated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.terminated
}

func (o *Writer) writeLocked(line []byte) error {
	if _, err := o.w.Write(line); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := o.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func encodeLine(value any) ([]byte, error) {
	if s, ok := value.(string); ok {
		return append([]byte(s), '\n'), nil
	}
	if !encodable(value) {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayload, value)
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}
	// Encode terminates with a newline and never emits raw newlines inside
	// compact output.
	return buf.Bytes(), nil
}

func isTerminalLine(line []byte) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return false
	}
	_, ok := obj["code"]
	return ok
}

func encodable(value any) bool {
	if value == nil {
		return false
	}
	if _, ok := value.(json.Marshaler); ok {
		return true
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String, reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}
