package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/xyrun/internal/doctor"
)

var errJobInvalid = errors.New("job is invalid")

func newDoctorCommand(ctx *cliContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check a job and the local runtime without running it",
		Long: `doctor reads a job the same way a run does and reports problems that
would make it fail: an empty command, a missing working directory, an
unusable base_url, or a legacy shell that cannot run on this host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			job, err := ctx.readJob(cmd.InOrStdin())
			if err != nil {
				return err
			}

			result := doctor.Check(cfg, job, doctor.Options{})

			out := cmd.OutOrStdout()
			if jsonOut {
				data, err := doctor.FormatJSON(result)
				if err != nil {
					return fmt.Errorf("render doctor JSON: %w", err)
				}
				fmt.Fprintln(out, data)
			} else {
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			if !result.Valid {
				return errJobInvalid
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the report as JSON")
	return cmd
}
