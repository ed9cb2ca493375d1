package main

import (
	"context"
	"fmt"
	"io"

	deviceagent "github.com/httprunner/DeviceAgent"
	"github.com/httprunner/DeviceAgent/internal/env"
	"github.com/httprunner/DeviceAgent/internal/providers/adb"
	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/sequencer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const envAndroidSerial = "ANDROID_SERIAL"

func newRunCmd() *cobra.Command {
	var (
		flagSerial       string
		flagManufacturer string
		flagStrict       bool
	)

	cmd := &cobra.Command{
		Use:   "run <operation> [args...]",
		Short: "Run one catalog operation on one or more devices",
		Long: "Run a catalog operation (see `deviceagent ops`) and print its report. " +
			"--serial accepts a comma-separated list; the operation then runs on every device in parallel. " +
			"Without --serial the single online device is used.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, opArgs := args[0], args[1:]
			op, known := sequencer.Lookup(name)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			agent, err := deviceagent.New(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := agent.Close(); err != nil {
					log.Error().Err(err).Msg("close report storage failed")
				}
			}()

			m := manufacturer.Parse(flagManufacturer)
			serials := splitSerials(firstNonEmpty(flagSerial, env.String(envAndroidSerial, "")))
			if known {
				serials, err = targetSerials(ctx, op, serials, defaultLister)
				if err != nil {
					return err
				}
			}

			var reports []deviceagent.DeviceReport
			if len(serials) <= 1 {
				serial := ""
				if len(serials) == 1 {
					serial = serials[0]
				}
				reports = []deviceagent.DeviceReport{{Serial: serial, Report: agent.Run(ctx, name, serial, m, opArgs)}}
			} else {
				reports = agent.RunOnDevices(ctx, name, serials, m, opArgs)
			}
			printReports(cmd.OutOrStdout(), reports)

			if flagStrict {
				if failed := countUnsuccessful(reports); failed > 0 {
					return errors.Errorf("%d of %d %s did not succeed", failed, len(reports), plural(len(reports), "report"))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagSerial, "serial", "s", "", "Device serial(s), comma separated, overriding $"+envAndroidSerial)
	cmd.Flags().StringVarP(&flagManufacturer, "manufacturer", "m", "", "Device manufacturer (see `deviceagent vendors`); defaults to Generic")
	cmd.Flags().BoolVar(&flagStrict, "strict", false, "Exit non-zero when any report is failed, partial or rejected")

	return cmd
}

func defaultLister() (adb.StateLister, error) {
	return adb.NewDefault()
}

// targetSerials decides which devices an operation runs on. Offline
// operations never need a device; device operations without an explicit
// serial use the single online device.
func targetSerials(ctx context.Context, op sequencer.Operation, serials []string, lister func() (adb.StateLister, error)) ([]string, error) {
	if len(serials) > 0 {
		return serials, nil
	}
	if op.Offline {
		return nil, nil
	}
	l, err := lister()
	if err != nil {
		return nil, err
	}
	serial, err := adb.ResolveSerial(ctx, l)
	if err != nil {
		return nil, err
	}
	log.Info().Str("serial", serial).Msg("using the only online device")
	return []string{serial}, nil
}

func printReports(w io.Writer, reports []deviceagent.DeviceReport) {
	for i, dr := range reports {
		if len(reports) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "=== %s ===\n", dr.Serial)
		}
		fmt.Fprintln(w, dr.Report.Render())
	}
}

func countUnsuccessful(reports []deviceagent.DeviceReport) int {
	n := 0
	for _, dr := range reports {
		switch dr.Report.Outcome() {
		case report.OutcomeSuccess, report.OutcomeInstructions:
		default:
			n++
		}
	}
	return n
}
