package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/protocol"
)

func linuxWithShell() Options {
	return Options{
		GOOS:     "linux",
		LookPath: func(file string) (string, error) { return file, nil },
	}
}

func validJob(t *testing.T) *protocol.JobContext {
	t.Helper()
	return &protocol.JobContext{
		Params:  map[string]any{"command": "xy.status('ok')"},
		Cwd:     t.TempDir(),
		BaseURL: "https://xyops.example",
		Secrets: map[string]string{"XYOPS_API_KEY": "k"},
	}
}

func hasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidJob(t *testing.T) {
	t.Parallel()
	r := Check(nil, validJob(t), linuxWithShell())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
	if got := FormatHuman(r); got != "Job valid.\n" {
		t.Fatalf("FormatHuman() = %q", got)
	}
}

func TestValidate_EmptyCommand(t *testing.T) {
	t.Parallel()
	job := validJob(t)
	job.Params["command"] = "   "

	r := Check(nil, job, linuxWithShell())
	if r.Valid {
		t.Fatal("expected invalid for empty command")
	}
	if !hasIssue(r.Errors, "params.command") {
		t.Fatalf("expected params.command error, got %v", r.Errors)
	}
}

func TestValidate_Cwd(t *testing.T) {
	t.Parallel()

	job := validJob(t)
	job.Cwd = filepath.Join(job.Cwd, "missing")
	if r := Check(nil, job, linuxWithShell()); !hasIssue(r.Errors, "cwd") {
		t.Fatalf("expected cwd error for missing dir, got %v", r.Errors)
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	job = validJob(t)
	job.Cwd = file
	r := Check(nil, job, linuxWithShell())
	if !hasIssue(r.Errors, "cwd") {
		t.Fatalf("expected cwd error for file, got %v", r.Errors)
	}
	if !strings.Contains(r.Errors[0].Message, "not a directory") {
		t.Fatalf("unexpected message %q", r.Errors[0].Message)
	}
}

func TestValidate_BaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		baseURL string
		secrets map[string]string
		wantErr bool
	}{
		{name: "no secrets, no url", baseURL: "", secrets: nil, wantErr: false},
		{name: "secrets, no url", baseURL: "", secrets: map[string]string{"XYOPS_API_KEY": "k"}, wantErr: true},
		{name: "bad scheme", baseURL: "ftp://host", secrets: map[string]string{"XYOPS_API_KEY": "k"}, wantErr: true},
		{name: "unparseable", baseURL: "http://[::1", secrets: map[string]string{"XYOPS_API_KEY": "k"}, wantErr: true},
		{name: "https", baseURL: "https://host:5522", secrets: map[string]string{"XYOPS_API_KEY": "k"}, wantErr: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := validJob(t)
			job.BaseURL = tc.baseURL
			job.Secrets = tc.secrets
			r := Check(nil, job, linuxWithShell())
			if got := hasIssue(r.Errors, "base_url"); got != tc.wantErr {
				t.Fatalf("base_url error = %v, want %v (errors: %v)", got, tc.wantErr, r.Errors)
			}
		})
	}
}

func TestValidate_LegacyRuntimeOnlyWhenSelected(t *testing.T) {
	t.Parallel()
	plan9 := Options{GOOS: "plan9", LookPath: linuxWithShell().LookPath}

	job := validJob(t)
	if r := Check(nil, job, plan9); !r.Valid {
		t.Fatalf("script jobs must not check the shell, got %v", r.Errors)
	}

	job.Params[protocol.ParamLegacyShell] = true
	r := Check(nil, job, plan9)
	if r.Valid || !hasIssue(r.Errors, "legacy.interpreter") {
		t.Fatalf("expected legacy runtime error, got %v", r.Errors)
	}
}

func TestLegacyRuntime(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults().Legacy

	if err := LegacyRuntime(cfg, linuxWithShell()); err != nil {
		t.Fatalf("LegacyRuntime() error = %v", err)
	}

	err := LegacyRuntime(cfg, Options{GOOS: "windows"})
	if err == nil || !strings.Contains(err.Error(), "not supported on windows") {
		t.Fatalf("expected unsupported OS error, got %v", err)
	}

	notFound := errors.New("executable file not found in $PATH")
	err = LegacyRuntime(cfg, Options{
		GOOS:     "linux",
		LookPath: func(string) (string, error) { return "", notFound },
	})
	if !errors.Is(err, notFound) {
		t.Fatalf("expected wrapped LookPath error, got %v", err)
	}

	cfg.Interpreter = " "
	if err := LegacyRuntime(cfg, linuxWithShell()); err == nil {
		t.Fatal("expected error for blank interpreter")
	}

	cfg = config.Defaults().Legacy
	cfg.SupportedOS = nil
	if err := LegacyRuntime(cfg, Options{GOOS: "plan9", LookPath: linuxWithShell().LookPath}); err != nil {
		t.Fatalf("empty supported list allows any OS, got %v", err)
	}
}

func TestValidate_SecretWarnings(t *testing.T) {
	t.Parallel()

	job := validJob(t)
	job.Secrets = nil
	job.BaseURL = ""
	r := Check(nil, job, linuxWithShell())
	if !r.Valid {
		t.Fatalf("missing secrets is only a warning, got %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "secrets") {
		t.Fatalf("expected secrets warning, got %v", r.Warnings)
	}

	job = validJob(t)
	job.Secrets = map[string]string{"OTHER": "x"}
	r = Check(nil, job, linuxWithShell())
	if !hasIssue(r.Warnings, "secrets.XYOPS_API_KEY") {
		t.Fatalf("expected key warning, got %v", r.Warnings)
	}

	job.Params["apikey_var"] = "OTHER"
	r = Check(nil, job, linuxWithShell())
	if len(r.Warnings) != 0 {
		t.Fatalf("apikey_var should satisfy the key check, got %v", r.Warnings)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "job", Field: "cwd", Message: "gone"}},
		Warnings: []Issue{{Category: "remote", Message: "no secrets"}},
	}
	got := FormatHuman(r)
	for _, want := range []string{
		"Job invalid (1 error(s), 1 warning(s))",
		"ERROR [job] cwd: gone",
		"WARN  [remote] no secrets",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatHuman() missing %q in:\n%s", want, got)
		}
	}

	r = &Result{Valid: true, Warnings: []Issue{{Category: "remote", Message: "w"}}}
	if got := FormatHuman(r); !strings.HasPrefix(got, "Job valid (1 warning(s))") {
		t.Errorf("FormatHuman() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatalf("FormatJSON() error = %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("FormatJSON() = %s", out)
	}
	if strings.Contains(out, "errors") {
		t.Fatalf("empty errors should be omitted: %s", out)
	}
}
