package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stemforge/internal/stemmeta"
)

func newMetadataCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonPath   string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "metadata FILE",
		Short: "Show or dump the stem metadata box of a container",
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
			out := cmd.OutOrStdout()
			if !h.HasMetadata {
				fmt.Fprintf(out, "%s has no stem metadata box\n", args[0])
				return nil
			}
			if jsonPath != "" {
				if err := stemmeta.WriteFile(jsonPath, h.Metadata); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", jsonPath)
			}
			if reportPath != "" {
				if err := stemmeta.WriteReportFile(reportPath, h.Metadata); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(out, "Wrote %s\n", reportPath)
			}
			if jsonPath == "" && reportPath == "" {
				return stemmeta.WriteReport(out, h.Metadata)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jsonPath, "json", "", "Write the metadata document to this JSON or YAML file")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the fixed-width stem report to this file")
	return cmd
}
