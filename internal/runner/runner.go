// Package runner drives one job through Init, Setup, Running and
// Terminated, and guarantees exactly one terminal envelope.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/executor"
	"github.com/mattjoyce/xyrun/internal/helpers"
	"github.com/mattjoyce/xyrun/internal/log"
	"github.com/mattjoyce/xyrun/internal/output"
	"github.com/mattjoyce/xyrun/internal/protocol"
	"github.com/mattjoyce/xyrun/internal/xyapi"
)

// Job parameters read by the runner.
const (
	ParamLogTime     = "enableLogTime"
	ParamPassData    = "passdata"
	ParamOutputXyOps = "outputxyops"
)

// ContextPanelTitle titles the markdown panel emitted for outputxyops.
const ContextPanelTitle = "xyOps Job Context"

// State is a runner lifecycle stage.
type State int

const (
	StateInit State = iota
	StateSetup
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSetup:
		return "setup"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Runner executes one job and reports it to the host.
type Runner struct {
	cfg    *config.Config
	job    *protocol.JobContext
	out    *output.Writer
	log    *output.JobLog
	lib    *helpers.Library
	exec   executor.Executor
	logger *slog.Logger
	state  State

	chdir   func(string) error
	libOpts []helpers.Option
	newExec func(*helpers.Library) executor.Executor
}

// Option configures a Runner.
type Option func(*Runner)

// WithRemoteFactory replaces the REST client used by the remote helpers.
func WithRemoteFactory(f helpers.RemoteFactory) Option {
	return func(r *Runner) { r.libOpts = append(r.libOpts, helpers.WithRemoteFactory(f)) }
}

// WithExecutor overrides executor selection.
func WithExecutor(newExec func(*helpers.Library) executor.Executor) Option {
	return func(r *Runner) { r.newExec = newExec }
}

// WithChdir replaces os.Chdir.
func WithChdir(chdir func(string) error) Option {
	return func(r *Runner) { r.chdir = chdir }
}

// New performs Init: it wires the job's output, picks the executor and
// compiles the command. An error here is fatal and nothing has been
// written to stdout.
func New(job *protocol.JobContext, stdout io.Writer, cfg *config.Config, opts ...Option) (*Runner, error) {
	if job == nil {
		return nil, errors.New("no job")
	}
	if cfg == nil {
		cfg = config.Defaults()
	}

	r := &Runner{
		cfg:    cfg,
		job:    job,
		out:    output.NewWriter(stdout),
		logger: log.WithJob(job.ID),
		state:  StateInit,
		chdir:  os.Chdir,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.log = output.NewJobLog(r.out, false)
	apiLogger := log.WithComponent("xyapi").With("job_id", job.ID)
	libOpts := append([]helpers.Option{helpers.WithLogger(apiLogger)}, r.libOpts...)
	r.lib = helpers.New(job, r.out, r.log, cfg, libOpts...)

	if r.newExec != nil {
		r.exec = r.newExec(r.lib)
	} else {
		r.exec = executor.Select(r.lib, cfg, log.WithComponent("executor").With("job_id", job.ID))
	}

	command := job.Command()
	if command == "" {
		return nil, errors.New("job has no command")
	}
	if err := r.exec.Compile(command); err != nil {
		return nil, err
	}
	r.logger.Debug("job initialized", "executor", r.exec.Name(), "script_digest", executor.Digest(command))
	return r, nil
}

// State returns the current lifecycle stage.
func (r *Runner) State() State {
	return r.state
}

// Run performs Setup and Running, then writes the terminal envelope and
// the final "Job Finished" line. It returns the terminal code. The error is
// non-nil only when the host stream itself failed.
func (r *Runner) Run(ctx context.Context) (code int, err error) {
	defer func() {
		if ferr := r.log.Info("Job Finished"); ferr != nil && err == nil {
			err = ferr
		}
	}()

	jobErr := r.guard(func() error {
		if err := r.setup(); err != nil {
			return err
		}
		r.state = StateRunning
		return r.exec.Execute(ctx)
	})
	return r.terminate(jobErr)
}

// guard turns a panic into an error so the job still terminates.
func (r *Runner) guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job panicked", "panic", p)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func (r *Runner) setup() error {
	r.state = StateSetup
	job := r.job

	r.log.SetTimeTagging(job.ParamBool(ParamLogTime))

	if job.ParamBool(ParamPassData) {
		if err := r.passData(); err != nil {
			return err
		}
	}

	if job.Cwd != "" {
		if err := r.chdir(job.Cwd); err != nil {
			return fmt.Errorf("change to working directory: %w", err)
		}
	}

	if job.ParamBool(ParamOutputXyOps) {
		if err := r.outputContext(); err != nil {
			return err
		}
	}

	if err := r.loadExtensions(); err != nil {
		return err
	}

	return r.log.Info("Job Started")
}

func (r *Runner) passData() error {
	in := r.job.Input
	if in != nil && in.Data != nil {
		return r.lib.Data(in.Data)
	}
	if in == nil {
		in = &protocol.Input{}
	}
	return r.lib.Data(in)
}

// outputContext emits the job context, secrets masked, as a fenced JSON
// block in a markdown panel. Host keys the runner does not know about are
// included via JobContext.Extra.
func (r *Runner) outputContext() error {
	masked := *r.job
	masked.Secrets = xyapi.MaskSecrets(r.job.Secrets)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&masked); err != nil {
		return fmt.Errorf("encode job context: %w", err)
	}
	content := "```json\n" + strings.TrimSuffix(buf.String(), "\n") + "\n```"
	return r.lib.Markdown(content, ContextPanelTitle, "")
}

// loadExtensions loads input files matching the executor's glob. A file
// that fails to load is reported and skipped.
func (r *Runner) loadExtensions() error {
	glob := r.exec.ExtensionGlob()
	for _, f := range r.job.InputFiles() {
		name := f.Filename
		if name == "" {
			name = path.Base(f.Path)
		}
		ok, err := path.Match(glob, name)
		if err != nil {
			return fmt.Errorf("extension glob %q: %w", glob, err)
		}
		if !ok {
			continue
		}
		if err := r.exec.LoadExtension(f.Path); err != nil {
			r.logger.Warn("extension failed to load", "file", name, "error", err)
			if lerr := r.log.Error(fmt.Sprintf("Failed to load extension %s: %v", name, err)); lerr != nil {
				return lerr
			}
			continue
		}
		r.logger.Debug("extension loaded", "file", name)
	}
	return nil
}

func (r *Runner) terminate(jobErr error) (int, error) {
	r.state = StateTerminated

	if jobErr == nil {
		return protocol.CodeSuccess, r.out.Terminate(protocol.Success())
	}

	var unsupported *executor.UnsupportedRuntimeError
	if errors.As(jobErr, &unsupported) {
		code := protocol.CodeUnsupportedRuntime
		r.logger.Error("unsupported runtime", "reason", unsupported.Reason)
		if err := r.log.Error(unsupported.Reason); err != nil {
			return code, err
		}
		return code, r.out.Terminate(protocol.Failure(code, unsupported.Reason))
	}

	code := protocol.CodeJobFailed
	r.logger.Error("job failed", "error", jobErr)
	if err := r.log.Error(protocol.JobFailedDescription); err != nil {
		return code, err
	}
	if err := r.log.Error(strings.TrimSpace(jobErr.Error())); err != nil {
		return code, err
	}
	return code, r.out.Terminate(protocol.Failure(code, protocol.JobFailedDescription))
}
