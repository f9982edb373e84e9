package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"stemforge/internal/demux"
	"stemforge/internal/textutil"
	"stemforge/internal/transcode"
)

func newDecodeCommand(ctx *commandContext) *cobra.Command {
	var (
		streams         []int
		start           float64
		duration        float64
		check           bool
		packed          bool
		channelsPerStem int
		outDir          string
		format          string
	)

	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Extract the streams of a stem container as audio files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, cfg, _, err := ctx.tooling()
			if err != nil {
				return err
			}
			path := args[0]
			d, err := ctx.demuxer(true)
			if err != nil {
				return err
			}
			h, err := d.Probe(cmd.Context(), path)
			if err != nil {
				return err
			}

			opts := demux.ExtractOptions{
				Start:    seconds(start),
				Duration: seconds(duration),
				Check:    check,
			}
			if cmd.Flags().Changed("streams") {
				opts.Streams = streams
			}
			if channelsPerStem > 0 || packed {
				if channelsPerStem <= 0 {
					channelsPerStem = cfg.Decoding.ChannelsPerStem
				}
				opts.Reader = demux.ChannelReader{ChannelsPerStem: channelsPerStem}
			}
			buf, err := d.Extract(cmd.Context(), h, opts)
			if err != nil {
				return err
			}

			if format == "" {
				format = cfg.Decoding.OutputFormat
			}
			if outDir == "" {
				outDir = filepath.Dir(path)
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, w := range buf.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			names := outputNames(buf, demux.TrackName(path))
			bar := newProgressBar(out, len(buf.Data), "[cyan]Writing stems...[reset]")
			for i, frames := range buf.Data {
				target := filepath.Join(outDir, names[i]+"."+format)
				err := tools.transcoder.EncodePCM(cmd.Context(), transcode.EncodeRequest{
					Output:     target,
					Frames:     frames,
					SampleRate: buf.SampleRate,
					Channels:   buf.Channels(),
				})
				if err != nil {
					return err
				}
				_ = bar.Add(1)
				fmt.Fprintf(out, "Wrote %s\n", target)
			}
			_ = bar.Finish()
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&streams, "streams", nil, "Stream indices to extract (default all)")
	cmd.Flags().Float64Var(&start, "start", 0, "Start offset in seconds")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Duration in seconds (default to the end)")
	cmd.Flags().BoolVar(&check, "check", false, "Fail instead of truncating when stream lengths differ")
	cmd.Flags().BoolVar(&packed, "packed", false, "Read stems packed as channel groups of one stream")
	cmd.Flags().IntVar(&channelsPerStem, "channels-per-stem", 0, "Channels per stem for packed reading (implies --packed)")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Output directory (default beside the container)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: wav, aiff, flac or m4a (default from config)")
	return cmd
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

// outputNames uses stream titles when they are distinct, and
// "<track>.<index>" otherwise.
func outputNames(buf *demux.Buffers, track string) []string {
	names := make([]string, len(buf.Streams))
	seen := make(map[string]bool, len(buf.Titles))
	unique := len(buf.Titles) == len(buf.Streams)
	for _, title := range buf.Titles {
		key := textutil.SafeFileName(title, "")
		if key == "" || seen[key] {
			unique = false
			break
		}
		seen[key] = true
	}
	for i, idx := range buf.Streams {
		if unique {
			names[i] = textutil.SafeFileName(buf.Titles[i], track)
			continue
		}
		names[i] = textutil.SafeFileName(track, "stem") + "." + strconv.Itoa(idx)
	}
	return names
}
