package protocol

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func marshalEnvelope(t *testing.T, env Envelope) map[string]any {
	t.Helper()
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["xy"] != float64(1) {
		t.Fatalf("envelope missing xy=1: %s", raw)
	}
	return out
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		want    float64
	}{
		{"zero", 0, 0},
		{"half", 50, 0.5},
		{"full", 100, 1},
		{"over range clamps", 150, 1},
		{"negative clamps", -5, 0},
		{"nan", math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := marshalEnvelope(t, Progress(tt.percent, ""))
			if out["progress"] != tt.want {
				t.Errorf("progress = %v, want %v", out["progress"], tt.want)
			}
			if _, ok := out["status"]; ok {
				t.Error("status should be omitted when empty")
			}
		})
	}

	out := marshalEnvelope(t, Progress(25, "copying"))
	if out["status"] != "copying" {
		t.Errorf("status = %v", out["status"])
	}
}

func TestPerfWithScale(t *testing.T) {
	env := Perf(map[string]any{"db": 1851, "http": 3220}, 1000)
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"perf":{"db":1851,"http":3220,"scale":1000},"xy":1}` {
		t.Errorf("perf envelope = %s", raw)
	}

	noScale := marshalEnvelope(t, Perf(map[string]any{"db": 1.5}, 0))
	perf := noScale["perf"].(map[string]any)
	if _, ok := perf["scale"]; ok {
		t.Error("scale should be omitted when zero")
	}
}

func TestPanelsOmitOptionalFields(t *testing.T) {
	for key, env := range map[string]Envelope{
		"html":     HTML("<b>x</b>", "", ""),
		"text":     Text("x", "", ""),
		"markdown": Markdown("# x", "", ""),
	} {
		out := marshalEnvelope(t, env)
		panel, ok := out[key].(map[string]any)
		if !ok {
			t.Fatalf("%s payload missing: %#v", key, out)
		}
		if _, ok := panel["title"]; ok {
			t.Errorf("%s: title should be omitted", key)
		}
		if _, ok := panel["caption"]; ok {
			t.Errorf("%s: caption should be omitted", key)
		}
	}

	out := marshalEnvelope(t, Text("body", "Title", "cap"))
	panel := out["text"].(map[string]any)
	if panel["title"] != "Title" || panel["caption"] != "cap" || panel["content"] != "body" {
		t.Errorf("text panel = %#v", panel)
	}
}

func TestMarkdownAsHTML(t *testing.T) {
	env, err := MarkdownAsHTML("# Report\n\n*done*", "Summary", "")
	if err != nil {
		t.Fatal(err)
	}
	panel := env["html"].(Panel)
	if !strings.Contains(panel.Content, "<h1>Report</h1>") || !strings.Contains(panel.Content, "<em>done</em>") {
		t.Errorf("rendered html = %q", panel.Content)
	}
	if panel.Title != "Summary" {
		t.Errorf("title = %q", panel.Title)
	}
}

func TestTableAndFile(t *testing.T) {
	out := marshalEnvelope(t, TableEnvelope(Table{Header: []string{"a", "b"}, Title: "T"}))
	table := out["table"].(map[string]any)
	if rows, ok := table["rows"].([]any); !ok || len(rows) != 0 {
		t.Errorf("rows should be an empty list, got %#v", table["rows"])
	}
	if _, ok := table["caption"]; ok {
		t.Error("caption should be omitted")
	}

	out = marshalEnvelope(t, File("/tmp/report.csv"))
	files := out["files"].([]any)
	file := files[0].(map[string]any)
	if file["path"] != "/tmp/report.csv" || file["delete"] != false {
		t.Errorf("file = %#v", file)
	}
}

func TestDataKeepsNull(t *testing.T) {
	raw, _ := json.Marshal(Data(nil))
	if string(raw) != `{"data":null,"xy":1}` {
		t.Errorf("data(nil) = %s", raw)
	}
}

func TestPushTagsNeverNull(t *testing.T) {
	raw, _ := json.Marshal(PushTags(nil))
	if string(raw) != `{"push":{"tags":[]},"xy":1}` {
		t.Errorf("push = %s", raw)
	}
}

func TestTerminalEnvelopes(t *testing.T) {
	if !Success().IsTerminal() {
		t.Error("success must be terminal")
	}
	if Status("x").IsTerminal() {
		t.Error("status must not be terminal")
	}

	raw, _ := json.Marshal(Success())
	if string(raw) != `{"code":0,"xy":1}` {
		t.Errorf("success = %s", raw)
	}
	raw, _ = json.Marshal(Failure(CodeJobFailed, JobFailedDescription))
	if string(raw) != `{"code":999,"description":"Job failed!","xy":1}` {
		t.Errorf("failure = %s", raw)
	}
}
