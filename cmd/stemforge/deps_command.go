package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stemforge/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check that the external tools are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			for _, s := range statuses {
				kind, msg := statusOK, s.Command
				if !s.Available {
					kind, msg = statusError, s.Detail
					if s.Optional {
						kind = statusWarn
					}
				}
				fmt.Fprintln(out, renderStatusLine(s.Name, kind, msg, colorize))
			}
			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required tool(s) missing", len(missing))
			}
			return nil
		},
	}
}
