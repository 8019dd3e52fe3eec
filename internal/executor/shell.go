package executor

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/doctor"
	"github.com/mattjoyce/xyrun/internal/helpers"
	"github.com/mattjoyce/xyrun/internal/output"
	"github.com/mattjoyce/xyrun/internal/protocol"
)

//go:embed prelude.sh
var prelude string

// defaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
const defaultGracePeriod = 5 * time.Second

// Shell runs the command through an external shell interpreter. The job
// context is written to the child's stdin; its stdout and stderr are
// captured to scratch files and relayed once it exits.
type Shell struct {
	lib    *helpers.Library
	cfg    config.LegacyConfig
	logger *slog.Logger
	opts   doctor.Options

	source     string
	extensions []string
}

// NewShell builds a shell executor.
func NewShell(lib *helpers.Library, cfg config.LegacyConfig, logger *slog.Logger) *Shell {
	return &Shell{lib: lib, cfg: cfg, logger: logger}
}

func (s *Shell) Name() string { return "shell" }

func (s *Shell) ExtensionGlob() string {
	if s.cfg.ExtensionGlob == "" {
		return "*.sh"
	}
	return s.cfg.ExtensionGlob
}

// Compile only records the source; the interpreter parses it at run time.
func (s *Shell) Compile(source string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("command is empty")
	}
	s.source = source
	s.logger.Debug("compiled command", "executor", s.Name(), "script_digest", Digest(source))
	return nil
}

// LoadExtension queues the file to be sourced ahead of the command.
func (s *Shell) LoadExtension(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("load extension: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("load extension: %s is not a regular file", path)
	}
	s.extensions = append(s.extensions, path)
	return nil
}

func (s *Shell) Execute(ctx context.Context) error {
	if s.source == "" {
		return fmt.Errorf("execute: command not compiled")
	}
	if err := doctor.LegacyRuntime(s.cfg, s.opts); err != nil {
		return &UnsupportedRuntimeError{Reason: err.Error()}
	}

	job := s.lib.Job()
	scratch, err := NewScratch(job.Cwd)
	if err != nil {
		return err
	}
	defer func() {
		if err := scratch.Cleanup(); err != nil {
			s.logger.Warn("failed to remove scratch files", "error", err)
		}
	}()

	wrapper, err := scratch.WriteFile(".sh", []byte(s.wrapperScript()), 0o700)
	if err != nil {
		return err
	}
	stdout, err := scratch.Create(".out")
	if err != nil {
		return err
	}
	defer stdout.Close()
	stderr, err := scratch.Create(".err")
	if err != nil {
		return err
	}
	defer stderr.Close()

	var stdin bytes.Buffer
	if err := protocol.EncodeJob(&stdin, job); err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	// Don't use CommandContext; termination is managed in wait.
	cmd := exec.Command(s.cfg.Interpreter, append(append([]string(nil), s.cfg.Args...), wrapper)...)
	cmd.Dir = scratch.Dir()
	cmd.Env = append(os.Environ(), s.childEnv()...)
	cmd.Stdin = &stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	s.logger.Debug("spawning legacy shell", "interpreter", s.cfg.Interpreter, "extensions", len(s.extensions))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start legacy shell: %w", err)
	}
	runErr := s.wait(ctx, cmd)

	if err := s.relay(stdout, stderr); err != nil {
		return err
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return fmt.Errorf("legacy shell exited with status %d", exitErr.ExitCode())
		}
		return fmt.Errorf("legacy shell: %w", runErr)
	}
	return nil
}

// wait blocks until cmd exits. If ctx ends first the child gets SIGTERM,
// then SIGKILL once the grace period expires.
func (s *Shell) wait(ctx context.Context, cmd *exec.Cmd) error {
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case err := <-waitErr:
		return err
	case <-ctx.Done():
	}

	s.logger.Warn("legacy shell cancelled, sending SIGTERM")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := s.cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-waitErr:
		s.logger.Info("legacy shell exited after SIGTERM")
	case <-timer.C:
		s.logger.Warn("legacy shell did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
	return fmt.Errorf("legacy shell cancelled: %w", ctx.Err())
}

// relay forwards captured stdout lines verbatim and stderr lines as error
// log lines. A stdout line carrying a completion code is logged instead of
// forwarded; the runner owns the terminal envelope.
func (s *Shell) relay(stdout, stderr *os.File) error {
	err := eachLine(stdout, func(line string) error {
		err := s.lib.Emit(line)
		if errors.Is(err, output.ErrTerminalViaEmit) {
			s.logger.Warn("dropped completion line from legacy shell", "line", line)
			return s.lib.JobLog().Error("Ignored completion message from legacy shell: " + line)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("relay stdout: %w", err)
	}
	err = eachLine(stderr, func(line string) error {
		return s.lib.JobLog().Error(line)
	})
	if err != nil {
		return fmt.Errorf("relay stderr: %w", err)
	}
	return nil
}

func (s *Shell) wrapperScript() string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString(prelude)
	b.WriteString("\n")
	for _, ext := range s.extensions {
		fmt.Fprintf(&b, ". %s\n", shellQuote(ext))
	}
	b.WriteString(s.source)
	if !strings.HasSuffix(s.source, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (s *Shell) childEnv() []string {
	job := s.lib.Job()
	logTime := "0"
	if job.ParamBool("enableLogTime") {
		logTime = "1"
	}
	return []string{
		"XY_JOB_ID=" + job.ID,
		"XY_BASE_URL=" + job.BaseURL,
		"XY_LOG_TIME=" + logTime,
	}
}

// eachLine calls fn for every non-empty line of f. Lines have no length
// limit; the capture files are already on disk.
func eachLine(f *os.File, fn func(string) error) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			if ferr := fn(text); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return nil
		}
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
