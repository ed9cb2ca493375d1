package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/httprunner/DeviceAgent/internal/providers/adb"
	"github.com/httprunner/DeviceAgent/pkg/storage"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices attached to the adb server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := adb.NewDefault()
			if err != nil {
				return err
			}
			devices, err := adb.Devices(cmd.Context(), provider)
			if err != nil {
				return pkgerrors.Wrap(err, "list adb devices failed")
			}
			return printDevices(cmd.OutOrStdout(), devices)
		},
	}
}

func printDevices(w io.Writer, devices []adb.Device) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "no devices attached")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIAL\tSTATE")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\n", d.Serial, d.State)
	}
	return tw.Flush()
}

func newHistoryCmd() *cobra.Command {
	var (
		flagLimit  int
		flagSerial string
		flagFull   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently recorded operation reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.History.Disabled {
				return pkgerrors.New("history is disabled")
			}
			reader, err := storage.OpenHistory(cfg.History.DBPath)
			if errors.Is(err, os.ErrNotExist) {
				return printHistory(cmd.OutOrStdout(), nil, flagFull)
			}
			if err != nil {
				return err
			}
			defer reader.Close()

			entries, err := reader.ListRecent(cmd.Context(), flagSerial, flagLimit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), entries, flagFull)
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", storage.DefaultHistoryLimit, "Maximum number of reports to show")
	cmd.Flags().StringVar(&flagSerial, "serial", "", "Only show reports for this device")
	cmd.Flags().BoolVar(&flagFull, "full", false, "Print each rendered report")

	return cmd
}

func printHistory(w io.Writer, entries []storage.HistoryEntry, full bool) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no recorded reports")
		return err
	}
	if full {
		for i, e := range entries {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "=== %s %s %s (%s) ===\n", e.StartedAt.Format(time.DateTime), e.Serial, e.Operation, e.Outcome)
			fmt.Fprintln(w, e.Rendered)
		}
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSERIAL\tOPERATION\tOUTCOME\tFAILED\tDURATION\tREPORTED")
	for _, e := range entries {
		reported := "-"
		switch {
		case e.Reported:
			reported = "yes"
		case e.ReportError != "":
			reported = "error"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.StartedAt.Format(time.DateTime), e.Serial, e.Operation, e.Outcome,
			e.FailedCount, e.StepCount, e.Duration().Round(time.Millisecond), reported)
	}
	return tw.Flush()
}
