package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"stemforge/internal/config"
	"stemforge/internal/demux"
	"stemforge/internal/integrity"
	"stemforge/internal/logging"
	"stemforge/internal/mux"
	"stemforge/internal/services"
	"stemforge/internal/tags"
	"stemforge/internal/transcode"
)

// toolset holds the external tool adapters. Tests replace it with in-memory
// implementations.
type toolset struct {
	transcoder transcode.Transcoder
	muxer      mux.Muxer
	prober     demux.Prober
	boxes      demux.BoxReader
	tagger     mux.Tagger
	skipChecks bool
}

type commandContext struct {
	configFlag string
	logLevel   string
	logFormat  string
	// readOnly commands create no directories and log to stderr only.
	readOnly bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	tools *toolset
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if level := strings.ToLower(strings.TrimSpace(c.logLevel)); level != "" {
			cfg.Logging.Level = level
		}
		if format := strings.ToLower(strings.TrimSpace(c.logFormat)); format != "" {
			cfg.Logging.Format = format
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		if !c.readOnly {
			if err := cfg.EnsureDirectories(); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		var logger *slog.Logger
		if c.readOnly {
			logger, err = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		} else {
			logger, err = logging.NewFromConfig(cfg)
		}
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) tooling() (*toolset, *config.Config, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, nil, err
	}
	if c.tools == nil {
		c.tools = &toolset{
			transcoder: transcode.NewFFmpeg(cfg, logger),
			muxer:      mux.NewMP4Box(cfg, logger),
			prober:     demux.NewFFprobe(cfg),
			tagger:     tags.NewApplier(logger, nil),
		}
	}
	return c.tools, cfg, logger, nil
}

func (c *commandContext) encoder(opts ...mux.Option) (*mux.Encoder, error) {
	tools, cfg, logger, err := c.tooling()
	if err != nil {
		return nil, err
	}
	return mux.NewEncoder(cfg, tools.transcoder, tools.muxer, tools.tagger, logger, opts...), nil
}

// demuxer builds a demuxer. With dumpFallback set, a stem box the native
// reader cannot reach is dumped with MP4Box instead.
func (c *commandContext) demuxer(dumpFallback bool) (*demux.Demuxer, error) {
	tools, cfg, logger, err := c.tooling()
	if err != nil {
		return nil, err
	}
	var opts []demux.Option
	if tools.boxes != nil {
		opts = append(opts, demux.WithBoxReader(tools.boxes))
	}
	if dumpFallback && !tools.skipChecks {
		opts = append(opts, demux.WithBoxFallback(demux.MP4BoxDumpReader{
			Binary: cfg.Tools.MP4Box,
			Runner: services.ExecRunner{Timeout: cfg.ToolTimeout()},
		}))
	}
	return demux.NewDemuxer(cfg, tools.prober, tools.transcoder, logger, opts...), nil
}

func (c *commandContext) checker() (*integrity.Checker, error) {
	d, err := c.demuxer(false)
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return integrity.NewChecker(d, logger), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	return hasAnnotation(cmd, "skipConfigLoad")
}

func hasAnnotation(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[key] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
