package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/executor"
	"github.com/mattjoyce/xyrun/internal/helpers"
	"github.com/mattjoyce/xyrun/internal/protocol"
	"github.com/mattjoyce/xyrun/internal/testsupport/fakehost"
)

// stubExecutor lets tests script the Running state directly.
type stubExecutor struct {
	execute  func(ctx context.Context) error
	loaded   []string
	loadErr  error
	compiled string
}

func (s *stubExecutor) Name() string          { return "stub" }
func (s *stubExecutor) ExtensionGlob() string { return "*.js" }

func (s *stubExecutor) Compile(source string) error {
	s.compiled = source
	return nil
}

func (s *stubExecutor) LoadExtension(path string) error {
	if s.loadErr != nil {
		return s.loadErr
	}
	s.loaded = append(s.loaded, path)
	return nil
}

func (s *stubExecutor) Execute(ctx context.Context) error {
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx)
}

func noChdir(string) error { return nil }

func command(src string) map[string]any {
	return map[string]any{"command": src}
}

func run(t *testing.T, job *protocol.JobContext, cfg *config.Config, opts ...Option) (int, []string) {
	t.Helper()
	var buf bytes.Buffer
	opts = append([]Option{WithChdir(noChdir)}, opts...)
	r, err := New(job, &buf, cfg, opts...)
	require.NoError(t, err)

	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, r.State())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assertSingleTerminal(t, lines)
	return code, lines
}

// assertSingleTerminal checks there is exactly one code envelope and that
// only "Job Finished" follows it.
func assertSingleTerminal(t *testing.T, lines []string) {
	t.Helper()
	terminal := -1
	for i, line := range lines {
		var env map[string]any
		if json.Unmarshal([]byte(line), &env) != nil {
			continue
		}
		if _, ok := env["code"]; ok {
			require.Equal(t, -1, terminal, "second terminal envelope at line %d", i)
			terminal = i
		}
	}
	require.NotEqual(t, -1, terminal, "no terminal envelope")
	require.Equal(t, len(lines)-2, terminal, "terminal envelope must be second to last")
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "[INFO] Job Finished"))
}

func TestNewRejectsBadCommands(t *testing.T) {
	var buf bytes.Buffer

	_, err := New(&protocol.JobContext{Params: map[string]any{}}, &buf, nil)
	assert.ErrorContains(t, err, "no command")

	_, err = New(&protocol.JobContext{Params: command("function (")}, &buf, nil)
	assert.ErrorContains(t, err, "compile command")

	_, err = New(nil, &buf, nil)
	assert.Error(t, err)

	assert.Empty(t, buf.String(), "init failures write nothing")
}

func TestTrivialCommandSucceeds(t *testing.T) {
	code, lines := run(t, &protocol.JobContext{Params: command("var x = 1 + 1;")}, nil)

	assert.Equal(t, protocol.CodeSuccess, code)
	assert.Equal(t, []string{
		"[INFO] Job Started",
		`{"code":0,"xy":1}`,
		"[INFO] Job Finished",
	}, lines)
}

func TestThrowingCommandFails(t *testing.T) {
	code, lines := run(t, &protocol.JobContext{Params: command(`throw new Error("boom")`)}, nil)

	assert.Equal(t, protocol.CodeJobFailed, code)
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "[INFO] Job Started", lines[0])
	assert.Equal(t, "[ERROR] Job failed!", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "[ERROR] "))
	assert.Contains(t, lines[2], "boom")
	assert.Equal(t, `{"code":999,"description":"Job failed!","xy":1}`, lines[len(lines)-2])
}

func TestEmittedCompletionDoesNotEndJob(t *testing.T) {
	code, lines := run(t, &protocol.JobContext{Params: command(`xy.emit({xy: 1, code: 0}); throw new Error("later")`)}, nil)

	assert.Equal(t, protocol.CodeJobFailed, code)
	assert.NotContains(t, lines, `{"code":0,"xy":1}`)
	assert.Equal(t, `{"code":999,"description":"Job failed!","xy":1}`, lines[len(lines)-2])
}

func TestLegacyShellCompletionLineIgnored(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	cfg := config.Defaults()
	cfg.Legacy.SupportedOS = nil

	params := command(`echo '{"xy":1,"code":0}'; exit 4`)
	params[protocol.ParamLegacyShell] = true
	code, lines := run(t, &protocol.JobContext{Params: params, Cwd: t.TempDir()}, cfg)

	assert.Equal(t, protocol.CodeJobFailed, code)
	assert.Contains(t, lines, `[ERROR] Ignored completion message from legacy shell: {"xy":1,"code":0}`)
}

func TestPerfScenario(t *testing.T) {
	code, lines := run(t, &protocol.JobContext{Params: command(`xy.perf({db: 1851, http: 3220}, 1000)`)}, nil)

	assert.Equal(t, protocol.CodeSuccess, code)
	assert.Contains(t, lines, `{"perf":{"db":1851,"http":3220,"scale":1000},"xy":1}`)
}

func TestNoInputFilesScenario(t *testing.T) {
	_, lines := run(t, &protocol.JobContext{Params: command(`xy.data({count: xy.inputFiles().length})`)}, nil)
	assert.Contains(t, lines, `{"data":{"count":0},"xy":1}`)
}

func TestPushUnknownTagScenario(t *testing.T) {
	host := fakehost.New(t)
	job := &protocol.JobContext{
		Params:  command(`xy.pushTags(["NonexistentTag"])`),
		BaseURL: host.URL(),
		Secrets: map[string]string{"XYOPS_API_KEY": fakehost.APIKey},
	}
	code, lines := run(t, job, nil)

	assert.Equal(t, protocol.CodeSuccess, code)
	assert.Equal(t, []string{
		"[INFO] Job Started",
		"[WARNING] Tag 'NonexistentTag' not found, skipping",
		`{"push":{"tags":[]},"xy":1}`,
		`{"code":0,"xy":1}`,
		"[INFO] Job Finished",
	}, lines)
}

func TestRemoteHelperWithoutSecretsFails(t *testing.T) {
	code, lines := run(t, &protocol.JobContext{Params: command(`xy.getBucketData("bk1")`)}, nil)

	assert.Equal(t, protocol.CodeJobFailed, code)
	assert.Contains(t, lines[2], "no secrets assigned")
}

func TestPassData(t *testing.T) {
	t.Run("input data", func(t *testing.T) {
		params := command("1")
		params[ParamPassData] = true
		job := &protocol.JobContext{Params: params, Input: &protocol.Input{Data: map[string]any{"rows": 3}}}
		_, lines := run(t, job, nil)
		assert.Equal(t, `{"data":{"rows":3},"xy":1}`, lines[0])
	})

	t.Run("whole input", func(t *testing.T) {
		params := command("1")
		params[ParamPassData] = "true"
		job := &protocol.JobContext{Params: params, Input: &protocol.Input{
			Files: []protocol.FileRef{{Filename: "a.txt", Path: "/in/a.txt", Size: 1}},
		}}
		_, lines := run(t, job, nil)
		assert.Equal(t, `{"data":{"files":[{"filename":"a.txt","path":"/in/a.txt","size":1}]},"xy":1}`, lines[0])
	})

	t.Run("no input", func(t *testing.T) {
		params := command("1")
		params[ParamPassData] = true
		_, lines := run(t, &protocol.JobContext{Params: params}, nil)
		assert.Equal(t, `{"data":{},"xy":1}`, lines[0])
	})
}

var fencedJSON = regexp.MustCompile("(?s)^```json\n(.*)\n```$")

func TestOutputContextRoundTrips(t *testing.T) {
	params := command("1")
	params[ParamOutputXyOps] = true
	job := &protocol.JobContext{
		ID:      "jrt",
		Params:  params,
		Cwd:     "/work",
		BaseURL: "https://xyops.example",
		Secrets: map[string]string{"XYOPS_API_KEY": "s3cret"},
		Input: &protocol.Input{
			Files: []protocol.FileRef{{Filename: "a.csv", Path: "/work/a.csv", Size: 10, Extra: map[string]any{"id": "f1"}}},
			Data:  map[string]any{"k": "v"},
		},
		Event: map[string]any{"title": "Nightly"},
		Extra: map[string]any{"workflow": map[string]any{"id": "w1", "note": "a<b && c"}},
	}
	_, lines := run(t, job, nil)

	var env struct {
		Markdown protocol.Panel `json:"markdown"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &env))
	assert.Equal(t, ContextPanelTitle, env.Markdown.Title)
	assert.NotContains(t, lines[0], "s3cret")
	assert.Contains(t, env.Markdown.Content, `"note": "a<b && c"`)

	m := fencedJSON.FindStringSubmatch(env.Markdown.Content)
	require.Len(t, m, 2, "content is not a json fence: %q", env.Markdown.Content)

	got, err := protocol.DecodeJob(strings.NewReader(strings.ReplaceAll(m[1], "\n", "")))
	require.NoError(t, err)

	want, err := protocol.DecodeJob(strings.NewReader(mustJSON(t, job)))
	require.NoError(t, err)
	want.Secrets = map[string]string{"XYOPS_API_KEY": "********"}
	assert.Equal(t, want, got)
	assert.Contains(t, got.Extra, "workflow")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestLogTimeTagging(t *testing.T) {
	params := command("1")
	params[ParamLogTime] = true
	_, lines := run(t, &protocol.JobContext{Params: params}, nil)

	stamped := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] Job Started$`)
	assert.Regexp(t, stamped, lines[0])
}

func TestExtensionsLoadedAndFailuresSkipped(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "lib.js")
	require.NoError(t, os.WriteFile(good, []byte(`function double(n) { return n * 2; }`), 0o644))
	bad := filepath.Join(dir, "bad.js")
	require.NoError(t, os.WriteFile(bad, []byte(`throw new Error("ext broke")`), 0o644))
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte(`not js`), 0o644))

	job := &protocol.JobContext{
		Params: command(`xy.data({n: double(21)})`),
		Input: &protocol.Input{Files: []protocol.FileRef{
			{Filename: "bad.js", Path: bad},
			{Filename: "lib.js", Path: good},
			{Filename: "notes.txt", Path: other},
		}},
	}
	code, lines := run(t, job, nil)

	assert.Equal(t, protocol.CodeSuccess, code)
	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[0], "[ERROR] Failed to load extension bad.js: "), lines[0])
	assert.Equal(t, "[INFO] Job Started", lines[1])
	assert.Equal(t, `{"data":{"n":42},"xy":1}`, lines[2])
}

func TestUnsupportedLegacyRuntime(t *testing.T) {
	cfg := config.Defaults()
	cfg.Legacy.SupportedOS = []string{"no-such-os"}

	params := command("echo hi")
	params[protocol.ParamLegacyShell] = true
	code, lines := run(t, &protocol.JobContext{Params: params}, cfg)

	assert.Equal(t, protocol.CodeUnsupportedRuntime, code)
	last := lines[len(lines)-2]
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(last), &env))
	assert.Equal(t, float64(998), env["code"])
	assert.Contains(t, env["description"], "not supported")
	assert.NotContains(t, lines, "[ERROR] Job failed!")
}

func TestPanicIsReportedAsFailure(t *testing.T) {
	stub := &stubExecutor{execute: func(context.Context) error { panic("helper exploded") }}
	code, lines := run(t, &protocol.JobContext{Params: command("x")}, nil,
		WithExecutor(func(*helpers.Library) executor.Executor { return stub }))

	assert.Equal(t, protocol.CodeJobFailed, code)
	assert.Contains(t, lines, "[ERROR] panic: helper exploded")
}

func TestChdirFailureFailsJob(t *testing.T) {
	var buf bytes.Buffer
	job := &protocol.JobContext{Params: command("1"), Cwd: "/does/not/exist"}
	r, err := New(job, &buf, nil, WithChdir(func(dir string) error {
		return errors.New("chdir " + dir + ": no such file or directory")
	}))
	require.NoError(t, err)

	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeJobFailed, code)
	assert.Contains(t, buf.String(), "change to working directory")
	assert.NotContains(t, buf.String(), "Job Started")
}

func TestStubExtensionsUseGlob(t *testing.T) {
	stub := &stubExecutor{}
	job := &protocol.JobContext{
		Params: command("x"),
		Input: &protocol.Input{Files: []protocol.FileRef{
			{Filename: "a.js", Path: "/in/a.js"},
			{Path: "/in/b.js"},
			{Filename: "c.sh", Path: "/in/c.sh"},
		}},
	}
	_, _ = run(t, job, nil, WithExecutor(func(*helpers.Library) executor.Executor { return stub }))

	assert.Equal(t, []string{"/in/a.js", "/in/b.js"}, stub.loaded)
	assert.Equal(t, "x", stub.compiled)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "state(9)", State(9).String())
}
