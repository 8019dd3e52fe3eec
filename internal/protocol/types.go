package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParamLegacyShell is the job parameter that selects the legacy shell
// executor.
const ParamLegacyShell = "useLegacyShell"

// JobContext is the job description the host writes to the plugin's stdin.
// It is decoded once at startup and not modified afterwards.
type JobContext struct {
	ID      string            `json:"id,omitempty"`
	Params  map[string]any    `json:"params"`
	Input   *Input            `json:"input,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	BaseURL string            `json:"base_url,omitempty"`
	Secrets map[string]string `json:"secrets,omitempty"`

	// Host metadata, passed through untouched.
	Event  map[string]any `json:"event,omitempty"`
	Plugin map[string]any `json:"plugin,omitempty"`

	// Extra holds any other top-level keys the host sent.
	Extra map[string]any `json:"-"`
}

type jobContextAlias JobContext

// UnmarshalJSON decodes the known keys with numbers kept as json.Number,
// coerces secret values to strings and keeps the rest in Extra.
func (j *JobContext) UnmarshalJSON(data []byte) error {
	var wire struct {
		jobContextAlias
		Secrets map[string]json.RawMessage `json:"secrets,omitempty"`
	}
	if err := decodeNumbers(data, &wire); err != nil {
		return err
	}
	*j = JobContext(wire.jobContextAlias)

	if wire.Secrets != nil {
		j.Secrets = make(map[string]string, len(wire.Secrets))
		for name, raw := range wire.Secrets {
			value, err := secretString(raw)
			if err != nil {
				return fmt.Errorf("secret %q: %w", name, err)
			}
			j.Secrets[name] = value
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		switch k {
		case "id", "params", "input", "cwd", "base_url", "secrets", "event", "plugin":
			continue
		}
		var val any
		if err := decodeNumbers(v, &val); err != nil {
			return fmt.Errorf("job field %q: %w", k, err)
		}
		if j.Extra == nil {
			j.Extra = make(map[string]any)
		}
		j.Extra[k] = val
	}
	return nil
}

// MarshalJSON writes Extra back alongside the known keys. Known keys win.
func (j JobContext) MarshalJSON() ([]byte, error) {
	known, err := marshalNoEscape(jobContextAlias(j))
	if err != nil || len(j.Extra) == 0 {
		return known, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, err
	}
	for k, v := range j.Extra {
		if _, ok := out[k]; ok {
			continue
		}
		raw, err := marshalNoEscape(v)
		if err != nil {
			return nil, fmt.Errorf("job field %q: %w", k, err)
		}
		out[k] = raw
	}
	return marshalNoEscape(out)
}

// secretString accepts any JSON scalar. Hosts sometimes send numeric or
// boolean secrets; null becomes "". Objects and arrays keep their JSON text.
func secretString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		return "", nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

func decodeNumbers(data []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(v)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Input carries files materialized by the host and data handed over from
// the previous workflow stage.
type Input struct {
	Files []FileRef `json:"files,omitempty"`
	Data  any       `json:"data,omitempty"`
}

// FileRef describes a file already present on local disk.
type FileRef struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`

	// Extra holds any other keys the host attached to the file.
	Extra map[string]any `json:"-"`
}

type fileRefAlias FileRef

// UnmarshalJSON decodes the known keys and keeps the rest in Extra.
func (f *FileRef) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var known fileRefAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*f = FileRef(known)
	for k, v := range raw {
		switch k {
		case "filename", "path", "size":
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("file field %q: %w", k, err)
		}
		if f.Extra == nil {
			f.Extra = make(map[string]any)
		}
		f.Extra[k] = val
	}
	return nil
}

// MarshalJSON flattens Extra back alongside the known keys.
func (f FileRef) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Extra)+3)
	for k, v := range f.Extra {
		out[k] = v
	}
	out["filename"] = f.Filename
	out["path"] = f.Path
	out["size"] = f.Size
	return json.Marshal(out)
}

// Command returns the user script block from params.command.
func (j *JobContext) Command() string {
	return j.ParamString("command")
}

// Param returns the raw value of a job parameter.
func (j *JobContext) Param(name string) (any, bool) {
	if j == nil || j.Params == nil {
		return nil, false
	}
	v, ok := j.Params[name]
	return v, ok
}

// ParamString returns a parameter as a trimmed string. Numbers and booleans
// are formatted; anything else yields "".
func (j *JobContext) ParamString(name string) string {
	v, _ := j.Param(name)
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64, int, int64, bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// ParamBool interprets a parameter as a flag. Checkbox params arrive as
// booleans, text params as "true"/"1"/"yes".
func (j *JobContext) ParamBool(name string) bool {
	v, _ := j.Param(name)
	return AsBool(v)
}

// InputFiles returns the attached files, never nil.
func (j *JobContext) InputFiles() []FileRef {
	if j == nil || j.Input == nil || len(j.Input.Files) == 0 {
		return []FileRef{}
	}
	return j.Input.Files
}

// HasSecrets reports whether the host assigned any secrets to the job.
func (j *JobContext) HasSecrets() bool {
	return j != nil && len(j.Secrets) > 0
}

// AsBool converts loosely typed JSON values to a flag.
func AsBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	default:
		return false
	}
}
