package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "probe FILE",
		Short: "List the streams of a stem container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ctx.demuxer(true)
			if err != nil {
				return err
			}
			h, err := d.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, h)
			}

			rows := make([][]string, 0, len(h.Streams))
			for _, s := range h.Streams {
				rows = append(rows, []string{
					strconv.Itoa(s.Index),
					s.Title,
					s.Codec,
					strconv.Itoa(s.SampleRate),
					strconv.Itoa(s.Channels),
					strconv.FormatFloat(s.Duration, 'f', 3, 64),
					yesNo(s.Enabled),
				})
			}
			headers := []string{"#", "Title", "Codec", "Rate", "Channels", "Duration", "Enabled"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			if h.SizeBytes > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Size %d bytes, %d kb/s\n", h.SizeBytes, h.BitRate/1000)
			}
			if !h.HasMetadata {
				fmt.Fprintln(cmd.OutOrStdout(), "No stem metadata box")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the stream table as JSON")
	return cmd
}
