package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stemforge/internal/tags"
)

func newTagsCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "tags FILE",
		Short: "Read the descriptive tags of an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			set, err := tags.NewExtractor(cfg.Paths.WorkDir, logger).Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output != "" {
				if err := tags.WriteFile(output, set); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
				return nil
			}
			rows := make([][]string, 0, len(set))
			for _, k := range set.Keys() {
				v, _ := set.Get(k)
				rows = append(rows, []string{string(k), v})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the tags to a JSON or YAML file usable with encode --tags")
	return cmd
}
