package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stemforge/internal/mux"
	"stemforge/internal/preflight"
	"stemforge/internal/stemmeta"
	"stemforge/internal/tags"
	"stemforge/internal/transcode"
)

func newEncodeCommand(ctx *commandContext) *cobra.Command {
	var (
		output   string
		codec    string
		tagFile  string
		metaFile string
		numbered bool
		split    bool
	)

	cmd := &cobra.Command{
		Use:   "encode MIXDOWN [COMPONENT...]",
		Short: "Build a stem container from a mixdown and its components",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, cfg, logger, err := ctx.tooling()
			if err != nil {
				return err
			}

			mixdown := args[0]
			components := args[1:]
			if numbered {
				if len(components) > 0 {
					return fmt.Errorf("--numbered discovers components; do not list them")
				}
				if components, err = mux.DiscoverNumbered(mixdown); err != nil {
					return err
				}
			}

			if codec == "" {
				codec = cfg.Encoding.Codec
			}
			parsedCodec, err := transcode.ParseCodec(codec)
			if err != nil {
				return err
			}

			job := mux.EncodeJob{
				Mixdown:    mixdown,
				Components: components,
				Output:     output,
				Codec:      parsedCodec,
			}
			if _, err := job.StemCount(); err != nil {
				return err
			}

			if tagFile != "" {
				job.Tags, err = tags.LoadFile(tagFile)
			} else {
				job.Tags, err = tags.NewExtractor(cfg.Paths.WorkDir, logger).Extract(cmd.Context(), mixdown)
			}
			if err != nil {
				return err
			}
			if metaFile != "" {
				meta, err := stemmeta.LoadFile(metaFile)
				if err != nil {
					return err
				}
				job.Metadata = &meta
			}

			if !tools.skipChecks {
				inputs := append([]string{mixdown}, components...)
				if err := preflight.Err(preflight.RunEncode(cfg, preflight.EncodePlan{Inputs: inputs, Output: job.OutputPath()})); err != nil {
					return err
				}
			}

			jobs := []mux.EncodeJob{job}
			if !cmd.Flags().Changed("split") {
				split = cfg.Encoding.SplitLarge
			}
			if split {
				jobs = mux.Split(job)
			}

			out := cmd.OutOrStdout()
			for i, j := range jobs {
				bar := newProgressBar(out, len(j.Components)+3, fmt.Sprintf("[cyan][%d/%d][reset] Encoding...", i+1, len(jobs)))
				enc, err := ctx.encoder(mux.WithProgress(func(p mux.Progress) {
					_ = bar.Set(p.Done)
				}))
				if err != nil {
					return err
				}
				path, err := enc.Encode(cmd.Context(), j)
				_ = bar.Finish()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Created %s (%d stems: %s)\n", path, len(j.Components), strings.Join(stemNames(j), ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Container path (default <mixdown>.stem.m4a)")
	cmd.Flags().StringVar(&codec, "codec", "", "Container codec: alac or aac (default from config)")
	cmd.Flags().StringVar(&tagFile, "tags", "", "JSON or YAML tag file instead of the mixdown's own tags")
	cmd.Flags().StringVar(&metaFile, "metadata", "", "JSON or YAML stem metadata file")
	cmd.Flags().BoolVar(&numbered, "numbered", false, "Discover <name>.1..8 components next to the mixdown")
	cmd.Flags().BoolVar(&split, "split", false, "Split 5-8 components into containers of up to four (default from config, on)")
	return cmd
}

func stemNames(job mux.EncodeJob) []string {
	meta := job.StemMetadata()
	names := make([]string, len(meta.Stems))
	for i, e := range meta.Stems {
		names[i] = e.Name
	}
	return names
}
