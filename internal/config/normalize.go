package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeTools()
	c.normalizeEncoding()
	c.normalizeDecoding()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = toolBinary(c.Tools.FFmpeg, "STEMFORGE_FFMPEG", defaultFFmpegBinary)
	c.Tools.FFprobe = toolBinary(c.Tools.FFprobe, "STEMFORGE_FFPROBE", defaultFFprobeBinary)
	c.Tools.MP4Box = toolBinary(c.Tools.MP4Box, "STEMFORGE_MP4BOX", defaultMP4BoxBinary)
}

// toolBinary prefers the environment override, then the configured value, then the default.
func toolBinary(value, envKey, fallback string) string {
	if env, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(env) != "" {
		return strings.TrimSpace(env)
	}
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func (c *Config) normalizeEncoding() {
	c.Encoding.Codec = strings.ToLower(strings.TrimSpace(c.Encoding.Codec))
	if c.Encoding.Codec == "" {
		c.Encoding.Codec = defaultCodec
	}
	c.Encoding.AACBitrate = strings.TrimSpace(c.Encoding.AACBitrate)
	if c.Encoding.AACBitrate == "" {
		c.Encoding.AACBitrate = defaultAACBitrate
	}
	if c.Encoding.Workers == 0 {
		c.Encoding.Workers = defaultWorkers
	}
}

func (c *Config) normalizeDecoding() {
	c.Decoding.PCMFormat = strings.ToLower(strings.TrimSpace(c.Decoding.PCMFormat))
	if c.Decoding.PCMFormat == "" {
		c.Decoding.PCMFormat = defaultPCMFormat
	}
	c.Decoding.OutputFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Decoding.OutputFormat), "."))
	if c.Decoding.OutputFormat == "" {
		c.Decoding.OutputFormat = defaultOutputFormat
	}
	if c.Decoding.Workers == 0 {
		c.Decoding.Workers = defaultWorkers
	}
	if c.Decoding.ChannelsPerStem == 0 {
		c.Decoding.ChannelsPerStem = defaultChannelsPerStem
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir()
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
