// Package doctor runs preflight checks on a job before it executes.
package doctor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/protocol"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Options lets tests stand in for the host environment.
type Options struct {
	// GOOS defaults to runtime.GOOS.
	GOOS string
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

func (o Options) withDefaults() Options {
	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	return o
}

// Doctor validates one job against the runner configuration.
type Doctor struct {
	cfg  *config.Config
	job  *protocol.JobContext
	opts Options
}

// New creates a Doctor. cfg may be nil for defaults.
func New(cfg *config.Config, job *protocol.JobContext, opts Options) *Doctor {
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &Doctor{cfg: cfg, job: job, opts: opts.withDefaults()}
}

// Check is shorthand for New(cfg, job, opts).Validate().
func Check(cfg *config.Config, job *protocol.JobContext, opts Options) *Result {
	return New(cfg, job, opts).Validate()
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateCommand(r)
	d.validateCwd(r)
	d.validateBaseURL(r)
	d.validateLegacyRuntime(r)
	d.warnMissingSecrets(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateCommand(r *Result) {
	if d.job.Command() == "" {
		d.addError(r, "job", "params.command", "command is empty")
	}
}

func (d *Doctor) validateCwd(r *Result) {
	if d.job.Cwd == "" {
		return
	}
	info, err := os.Stat(d.job.Cwd)
	if err != nil {
		d.addError(r, "job", "cwd", fmt.Sprintf("working directory: %v", err))
		return
	}
	if !info.IsDir() {
		d.addError(r, "job", "cwd", fmt.Sprintf("%q is not a directory", d.job.Cwd))
	}
}

// validateBaseURL only matters when remote helpers can authenticate.
func (d *Doctor) validateBaseURL(r *Result) {
	if !d.job.HasSecrets() {
		return
	}
	if d.job.BaseURL == "" {
		d.addError(r, "remote", "base_url", "base_url is required when secrets are assigned")
		return
	}
	u, err := url.Parse(d.job.BaseURL)
	if err != nil {
		d.addError(r, "remote", "base_url", fmt.Sprintf("invalid base_url: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		d.addError(r, "remote", "base_url", fmt.Sprintf("base_url scheme %q must be http or https", u.Scheme))
	}
}

func (d *Doctor) validateLegacyRuntime(r *Result) {
	if !d.job.ParamBool(protocol.ParamLegacyShell) {
		return
	}
	if err := LegacyRuntime(d.cfg.Legacy, d.opts); err != nil {
		d.addError(r, "runtime", "legacy.interpreter", err.Error())
	}
}

func (d *Doctor) warnMissingSecrets(r *Result) {
	if !d.job.HasSecrets() {
		d.addWarning(r, "remote", "secrets", "no secrets assigned; bucket, tag and email helpers will fail")
		return
	}
	keyVar := d.job.ParamString("apikey_var")
	if keyVar == "" {
		keyVar = d.cfg.API.KeySecret
	}
	if _, ok := d.job.Secrets[keyVar]; !ok {
		d.addWarning(r, "remote", "secrets."+keyVar, fmt.Sprintf("API key secret %q not assigned", keyVar))
	}
}

// LegacyRuntime reports why the legacy shell cannot run here, or nil.
func LegacyRuntime(cfg config.LegacyConfig, opts Options) error {
	opts = opts.withDefaults()
	if len(cfg.SupportedOS) > 0 && !slices.Contains(cfg.SupportedOS, opts.GOOS) {
		return fmt.Errorf("legacy shell is not supported on %s (supported: %s)", opts.GOOS, strings.Join(cfg.SupportedOS, ", "))
	}
	if strings.TrimSpace(cfg.Interpreter) == "" {
		return fmt.Errorf("legacy shell interpreter is not configured")
	}
	if _, err := opts.LookPath(cfg.Interpreter); err != nil {
		return fmt.Errorf("legacy shell interpreter %q not found: %w", cfg.Interpreter, err)
	}
	return nil
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Job valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Job valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Job invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
