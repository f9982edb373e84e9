package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stemforge/internal/integrity"
	"stemforge/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check FILE",
		Short:       "Verify a stem container without writing anything",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"readOnly": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := ctx.checker()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			report, err := checker.Verify(cmd.Context(), args[0])
			if err != nil {
				if !jsonOutput {
					stage := services.StageOf(err)
					fmt.Fprintln(out, renderStatusLine("Integrity", statusError, "failed at "+stage, colorize))
				}
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}

			durations := make([]string, len(report.Durations))
			for i, d := range report.Durations {
				durations[i] = strconv.FormatFloat(d, 'f', 3, 64)
			}
			fmt.Fprintln(out, renderStatusLine("Streams", statusOK, strconv.Itoa(report.Streams), colorize))
			fmt.Fprintln(out, renderStatusLine("Channels", statusOK, strconv.Itoa(report.Channels), colorize))
			fmt.Fprintln(out, renderStatusLine("Sample rate", statusInfo, strconv.Itoa(report.SampleRate)+" Hz", colorize))
			fmt.Fprintln(out, renderStatusLine("Durations", statusOK, strings.Join(durations, ", "), colorize))
			boxKind := statusOK
			if report.StemBox != integrity.BoxPresent {
				boxKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Stem box", boxKind, report.StemBox, colorize))
			fmt.Fprintln(out, renderStatusLine("Integrity", statusOK, "passed", colorize))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}
