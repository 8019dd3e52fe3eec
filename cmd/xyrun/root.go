package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/log"
	"github.com/mattjoyce/xyrun/internal/protocol"
	"github.com/mattjoyce/xyrun/internal/runner"
)

// EnvLogLevel overrides the configured diagnostics level.
const EnvLogLevel = "XYRUN_LOG_LEVEL"

// cliContext carries flag values shared by all commands.
type cliContext struct {
	configFlag   string
	logLevelFlag string
	jobFlag      string

	cfg *config.Config
}

func (c *cliContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := c.configFlag
	if path == "" {
		path = config.DiscoverConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if env := strings.TrimSpace(os.Getenv(EnvLogLevel)); env != "" {
		level = env
	}
	if c.logLevelFlag != "" {
		level = c.logLevelFlag
	}
	log.Setup(level)
	log.SetLevel(level)

	c.cfg = cfg
	return cfg, nil
}

// readJob decodes the job from --job when given, else from stdin.
func (c *cliContext) readJob(stdin io.Reader) (*protocol.JobContext, error) {
	if c.jobFlag == "" {
		return protocol.DecodeJob(stdin)
	}
	f, err := os.Open(c.jobFlag)
	if err != nil {
		return nil, fmt.Errorf("open job file: %w", err)
	}
	defer f.Close()
	return protocol.DecodeJob(f)
}

func newRootCommand() *cobra.Command {
	ctx := &cliContext{}

	rootCmd := &cobra.Command{
		Use:   "xyrun",
		Short: "xyOps event plugin that runs a job script",
		Long: `xyrun reads one JSON job line from stdin, runs params.command and
reports progress and the result to xyOps on stdout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, ctx)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default: $"+config.EnvConfigPath+" or discovered)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Diagnostics level on stderr: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&ctx.jobFlag, "job", "", "Read the job JSON from a file instead of stdin")

	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// runJob is the plugin entry point. Only failures before the first envelope
// surface as a command error; job failures are reported in the stream.
func runJob(cmd *cobra.Command, c *cliContext) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	job, err := c.readJob(cmd.InOrStdin())
	if err != nil {
		return err
	}
	log.Debug("job decoded", "job_id", job.ID, "params", len(job.Params), "input_files", len(job.InputFiles()))

	r, err := runner.New(job, cmd.OutOrStdout(), cfg)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := r.Run(runCtx)
	if err != nil {
		log.Error("host stream failed", "job_id", job.ID, "error", err)
		return fmt.Errorf("write job output: %w", err)
	}
	if runCtx.Err() != nil && cmd.Context().Err() == nil {
		log.Warn("job interrupted by signal", "job_id", job.ID, "code", code)
	}
	log.Info("job finished", "job_id", job.ID, "code", code)
	return nil
}
