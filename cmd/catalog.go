package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	deviceagent "github.com/httprunner/DeviceAgent"
	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/sequencer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newOpsCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List catalog operations by group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCatalog(cmd.OutOrStdout(), flagGroup)
		},
	}
	cmd.Flags().StringVar(&flagGroup, "group", "", "Only list one group")
	return cmd
}

func printCatalog(w io.Writer, group string) error {
	ops := sequencer.Catalog()
	groups := sequencer.Groups()
	if group != "" {
		found := false
		for _, g := range groups {
			if g == group {
				found = true
				break
			}
		}
		if !found {
			return errors.Errorf("unknown group %q", group)
		}
		groups = []string{group}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "[%s]\n", g)
		for _, op := range ops {
			if op.Group != g {
				continue
			}
			mode := ""
			if op.Offline {
				mode = "(no device)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", op.Synopsis(), op.Summary, mode)
		}
	}
	return tw.Flush()
}

func newVendorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "List supported manufacturers and their unlock class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVendors(cmd.OutOrStdout())
		},
	}
}

func printVendors(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPLATFORM\tUNLOCK")
	for _, m := range append([]manufacturer.Manufacturer{manufacturer.Generic}, manufacturer.All()...) {
		s := manufacturer.StrategyFor(m)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Name(), s.PlatformHint, s.Unlock)
	}
	return tw.Flush()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the deviceagent version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "deviceagent", deviceagent.Version)
		},
	}
}
