package protocol

import (
	"bytes"
	"fmt"
	"math"

	"github.com/yuin/goldmark"
)

// Terminal codes understood by the host.
const (
	CodeSuccess            = 0
	CodeUnsupportedRuntime = 998
	CodeJobFailed          = 999
)

// JobFailedDescription is the fixed description of a CodeJobFailed envelope.
const JobFailedDescription = "Job failed!"

// Envelope is a single message to the host: xy=1 plus one payload key.
type Envelope map[string]any

func newEnvelope(key string, payload any) Envelope {
	return Envelope{"xy": 1, key: payload}
}

// IsTerminal reports whether the envelope carries a completion code.
func (e Envelope) IsTerminal() bool {
	_, ok := e["code"]
	return ok
}

// Panel is the payload shape shared by html, text and markdown envelopes.
type Panel struct {
	Content string `json:"content"`
	Title   string `json:"title,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Table is the payload of a table envelope.
type Table struct {
	Rows    [][]any  `json:"rows"`
	Header  []string `json:"header,omitempty"`
	Title   string   `json:"title,omitempty"`
	Caption string   `json:"caption,omitempty"`
}

// FileOutput asks the host to adopt a local file.
type FileOutput struct {
	Path   string `json:"path"`
	Delete bool   `json:"delete"`
}

// TagPush is the payload of a push envelope.
type TagPush struct {
	Tags []string `json:"tags"`
}

// Progress reports completion as a 0..1 fraction. percent is clamped to
// [0,100]; NaN reports 0.
func Progress(percent float64, status string) Envelope {
	switch {
	case math.IsNaN(percent) || percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	env := newEnvelope("progress", percent/100)
	if status != "" {
		env["status"] = status
	}
	return env
}

func Status(text string) Envelope {
	return newEnvelope("status", text)
}

func Label(text string) Envelope {
	return newEnvelope("label", text)
}

// Data passes value to the next stage of a workflow. A nil value is sent as
// an explicit null.
func Data(value any) Envelope {
	return newEnvelope("data", value)
}

func File(path string) Envelope {
	return newEnvelope("files", []FileOutput{{Path: path, Delete: false}})
}

// Perf reports timing metrics. Durations are seconds unless scale is set,
// in which case the host divides by scale.
func Perf(metrics map[string]any, scale float64) Envelope {
	perf := make(map[string]any, len(metrics)+1)
	for k, v := range metrics {
		perf[k] = v
	}
	if scale > 0 {
		perf["scale"] = scale
	}
	return newEnvelope("perf", perf)
}

func TableEnvelope(t Table) Envelope {
	if t.Rows == nil {
		t.Rows = [][]any{}
	}
	return newEnvelope("table", t)
}

func HTML(content, title, caption string) Envelope {
	return newEnvelope("html", Panel{Content: content, Title: title, Caption: caption})
}

func Text(content, title, caption string) Envelope {
	return newEnvelope("text", Panel{Content: content, Title: title, Caption: caption})
}

func Markdown(content, title, caption string) Envelope {
	return newEnvelope("markdown", Panel{Content: content, Title: title, Caption: caption})
}

// MarkdownAsHTML renders Markdown server side and returns an html envelope,
// for hosts that cannot render markdown panels.
func MarkdownAsHTML(content, title, caption string) (Envelope, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return HTML(buf.String(), title, caption), nil
}

// PushTags attaches tag ids to the job. ids is never sent as null.
func PushTags(ids []string) Envelope {
	if ids == nil {
		ids = []string{}
	}
	return newEnvelope("push", TagPush{Tags: ids})
}

// Success is the terminal envelope of a job that completed normally.
func Success() Envelope {
	return newEnvelope("code", CodeSuccess)
}

// Failure is a terminal envelope with a non-zero code.
func Failure(code int, description string) Envelope {
	env := newEnvelope("code", code)
	if description != "" {
		env["description"] = description
	}
	return env
}
