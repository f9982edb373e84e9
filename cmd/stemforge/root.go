package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stemforge/internal/services"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(newCommandContext())
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "stemforge",
		Short:         "Build and unpack multi-track stem containers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(services.WithJobID(cmd.Context(), uuid.NewString()))
			if shouldSkipConfig(cmd) {
				return nil
			}
			ctx.readOnly = hasAnnotation(cmd, "readOnly")
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flags.StringVar(&ctx.logFormat, "log-format", "", "Log format override (console, json)")

	rootCmd.AddCommand(newEncodeCommand(ctx))
	rootCmd.AddCommand(newDecodeCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newMetadataCommand(ctx))
	rootCmd.AddCommand(newTagsCommand(ctx))
	rootCmd.AddCommand(newDepsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
